package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/ratelimit"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func newTestIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "storefront-test",
	})
}

func protectedRouter(cfg JWTConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", JWTAuth(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetJWTUserID(c), "role": GetJWTClaims(c).Role})
	})
	return r
}

func getWithToken(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth_ValidToken(t *testing.T) {
	issuer := newTestIssuer()
	userID := uuid.New()
	pair, err := issuer.IssueTokenPair(userID, "USER")
	require.NoError(t, err)

	w := getWithToken(protectedRouter(JWTConfig{Validator: issuer}), "Bearer "+pair.AccessToken)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
	assert.Contains(t, w.Body.String(), `"role":"USER"`)
}

func TestJWTAuth_Rejections(t *testing.T) {
	issuer := newTestIssuer()
	other := auth.NewTokenIssuer(config.JWTConfig{
		Secret:                "another-secret-key-at-least-32-chars",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "storefront-test",
	})
	foreign, err := other.IssueTokenPair(uuid.New(), "USER")
	require.NoError(t, err)

	expiredIssuer := newTestIssuer()
	expiredIssuer.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
	expired, err := expiredIssuer.IssueTokenPair(uuid.New(), "USER")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeUnauthorized},
		{"not bearer", "Basic abc", dto.ErrCodeUnauthorized},
		{"empty bearer", "Bearer ", dto.ErrCodeUnauthorized},
		{"garbage", "Bearer not-a-jwt", dto.ErrCodeTokenInvalid},
		{"wrong signature", "Bearer " + foreign.AccessToken, dto.ErrCodeTokenInvalid},
		{"expired", "Bearer " + expired.AccessToken, dto.ErrCodeTokenExpired},
	}

	r := protectedRouter(JWTConfig{Validator: issuer})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getWithToken(r, tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestJWTAuth_Blacklist(t *testing.T) {
	ctx := context.Background()
	issuer := newTestIssuer()
	blacklist := auth.NewInMemoryTokenBlacklist()
	r := protectedRouter(JWTConfig{Validator: issuer, Blacklist: blacklist})

	t.Run("revoked jti", func(t *testing.T) {
		pair, err := issuer.IssueTokenPair(uuid.New(), "USER")
		require.NoError(t, err)
		require.NoError(t, blacklist.AddToBlacklist(ctx, pair.AccessTokenID, time.Minute))

		w := getWithToken(r, "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenRevoked, decode(t, w).Error.Code)
	})

	t.Run("user sessions invalidated", func(t *testing.T) {
		userID := uuid.New()
		pair, err := issuer.IssueTokenPair(userID, "USER")
		require.NoError(t, err)
		require.NoError(t, blacklist.InvalidateUserTokens(ctx, userID.String(), time.Now().Add(2*time.Second), time.Hour))

		w := getWithToken(r, "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("lookup failure fails open", func(t *testing.T) {
		pair, err := issuer.IssueTokenPair(uuid.New(), "USER")
		require.NoError(t, err)

		w := getWithToken(protectedRouter(JWTConfig{Validator: issuer, Blacklist: failingBlacklist{}}), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

type failingBlacklist struct{}

func (failingBlacklist) AddToBlacklist(context.Context, string, time.Duration) error {
	return errors.New("redis down")
}
func (failingBlacklist) IsBlacklisted(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingBlacklist) InvalidateUserTokens(context.Context, string, time.Time, time.Duration) error {
	return errors.New("redis down")
}
func (failingBlacklist) IsUserTokenInvalidated(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("redis down")
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, w.Header().Get(RequestIDHeader), 32)
		assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())
	})

	t.Run("client supplied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("oversized id replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Len(t, w.Header().Get(RequestIDHeader), 32)
	})
}

func TestCORSWithConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://shop.example.com"}
	r := gin.New()
	r.Use(CORSWithConfig(cfg))
	r.POST("/api/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("allowed origin gets credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("wildcard never allows credentials", func(t *testing.T) {
		wild := DefaultCORSConfig()
		wild.AllowOrigins = []string{"*"}
		wr := gin.New()
		wr.Use(CORSWithConfig(wild))
		wr.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://any.example.com")
		w := httptest.NewRecorder()
		wr.ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestSecure(t *testing.T) {
	r := gin.New()
	r.Use(Secure(true))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleBindError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("declared too large", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"someone@example.com"}`)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, decode(t, w).Error.Code)
	})

	t.Run("within limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

type stubLimiter struct {
	res ratelimit.Result
	err error
}

func (s stubLimiter) Allow(context.Context, string) (ratelimit.Result, error) { return s.res, s.err }

func TestRateLimit(t *testing.T) {
	run := func(l ratelimit.Limiter) *httptest.ResponseRecorder {
		r := gin.New()
		r.Use(RequestID(), RateLimit(l, nil))
		r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		return w
	}

	t.Run("in-memory limiter stops the fourth request", func(t *testing.T) {
		limiter := ratelimit.NewMemoryLimiter(3, time.Minute)
		r := gin.New()
		r.Use(RateLimit(limiter, nil))
		r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

		codes := make([]int, 0, 4)
		for i := 0; i < 4; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{200, 200, 200, 429}, codes)
	})

	t.Run("denied sets retry-after", func(t *testing.T) {
		w := run(stubLimiter{res: ratelimit.Result{Limit: 10, RetryAfter: 1500 * time.Millisecond}})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, dto.ErrCodeRateLimited, decode(t, w).Error.Code)
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		w := run(stubLimiter{err: errors.New("redis down")})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

type signupBody struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
	OTP             string `json:"otp" binding:"omitempty,len=6,numeric"`
}

func TestHandleBindError(t *testing.T) {
	SetupValidator()
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var body signupBody
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleBindError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		return w
	}

	t.Run("validation details use json names", func(t *testing.T) {
		w := post(`{"email":"nope","password":"short","confirmPassword":"other","otp":"12ab56"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			Error struct {
				Code    string                 `json:"code"`
				Details []dto.ValidationDetail `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

		got := map[string]string{}
		for _, d := range resp.Error.Details {
			got[d.Field] = d.Message
		}
		assert.Equal(t, map[string]string{
			"email":           "Invalid email format",
			"password":        "Must be at least 8 characters",
			"confirmPassword": "Must match password",
			"otp":             "Must be numeric",
		}, got)
	})

	t.Run("malformed json", func(t *testing.T) {
		w := post(`{"email":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decode(t, w).Error.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		w := post(``)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decode(t, w).Error.Code)
	})

	t.Run("valid", func(t *testing.T) {
		w := post(`{"email":"a@b.co","password":"password1","confirmPassword":"password1"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
