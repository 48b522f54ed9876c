package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/identity"
	domainIdentity "github.com/storefront/backend/internal/domain/identity"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func jwtDate(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t)
}

type authTestEnv struct {
	router  *gin.Engine
	service *MockAuthUseCases
}

func setupAuthHandler(t *testing.T, validator middleware.AccessTokenValidator) *authTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()

	svc := new(MockAuthUseCases)
	cookie := NewRefreshCookie(config.CookieConfig{
		Name:     "refreshToken",
		Path:     "/api/v1/auth",
		Secure:   true,
		SameSite: "strict",
	})
	h := NewAuthHandler(svc, cookie, validator, false)

	r := gin.New()
	r.Use(middleware.RequestID())
	g := r.Group("/api/v1/auth")
	g.POST("/signup", h.Signup)
	g.POST("/verify-otp", h.VerifyOTP)
	g.POST("/resend-otp", h.ResendOTP)
	g.POST("/login", h.Login)
	g.POST("/forgot-password", h.ForgotPassword)
	g.POST("/reset-password", h.ResetPassword)
	g.POST("/refresh-token", h.RefreshToken)
	g.POST("/logout", h.Logout)
	g.GET("/me", func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(middleware.JWTUserIDKey, id)
		}
		c.Next()
	}, h.Me)

	t.Cleanup(func() { svc.AssertExpectations(t) })
	return &authTestEnv{router: r, service: svc}
}

func (e *authTestEnv) do(method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	errInfo, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error: %s", w.Body.String())
	return errInfo["code"].(string)
}

func refreshCookieOf(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	return nil
}

func sampleAuthResult() *identity.AuthResult {
	return &identity.AuthResult{
		User: identity.UserInfo{
			ID:         uuid.New(),
			Email:      "ada@example.com",
			Name:       "Ada",
			Role:       domainIdentity.RoleUser,
			IsVerified: true,
		},
		AccessToken:           "access-1",
		AccessTokenExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshToken:          "refresh-1",
		RefreshTokenExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
}

func TestAuthHandler_Signup(t *testing.T) {
	t.Run("creates the account", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("Signup", mock.Anything, identity.SignupInput{
			Email: "ada@example.com", Password: "s3cretpass", Name: "Ada",
		}).Return("Signup successful. Please verify your email.", nil)

		w := env.do(http.MethodPost, "/api/v1/auth/signup", map[string]string{
			"email": "ada@example.com", "password": "s3cretpass", "name": "Ada",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "Signup successful. Please verify your email.", data["message"])
	})

	t.Run("rejects short password before reaching the service", func(t *testing.T) {
		env := setupAuthHandler(t, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/signup", map[string]string{
			"email": "ada@example.com", "password": "short",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, errorCode(t, w))
		env.service.AssertNotCalled(t, "Signup", mock.Anything, mock.Anything)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		env := setupAuthHandler(t, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/signup", `{"email":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, errorCode(t, w))
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("Signup", mock.Anything, mock.Anything).Return("", domainIdentity.ErrEmailAlreadyExists)

		w := env.do(http.MethodPost, "/api/v1/auth/signup", map[string]string{
			"email": "ada@example.com", "password": "s3cretpass",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "EMAIL_ALREADY_EXISTS", errorCode(t, w))
	})
}

func TestAuthHandler_VerifyOTP(t *testing.T) {
	t.Run("returns access token and sets cookie", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("VerifyOTP", mock.Anything, identity.VerifyOTPInput{Email: "ada@example.com", OTP: "123456"}).
			Return(sampleAuthResult(), nil)

		w := env.do(http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{"email": "ada@example.com", "otp": "123456"})

		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "access-1", data["accessToken"])
		assert.NotContains(t, data, "refreshToken")
		cookie := refreshCookieOf(w)
		require.NotNil(t, cookie)
		assert.Equal(t, "refresh-1", cookie.Value)
	})

	t.Run("otp must be six digits", func(t *testing.T) {
		env := setupAuthHandler(t, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{"email": "ada@example.com", "otp": "12ab56"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, errorCode(t, w))
	})

	t.Run("wrong otp", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("VerifyOTP", mock.Anything, mock.Anything).Return(nil, domainIdentity.ErrInvalidOTP)

		w := env.do(http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{"email": "ada@example.com", "otp": "000000"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_OTP", errorCode(t, w))
		assert.Nil(t, refreshCookieOf(w))
	})
}

func TestAuthHandler_ResendOTP(t *testing.T) {
	env := setupAuthHandler(t, nil)
	env.service.On("ResendOTP", mock.Anything, "ada@example.com").Return("A new code has been sent", nil)

	w := env.do(http.MethodPost, "/api/v1/auth/resend-otp", map[string]string{"email": "ada@example.com"})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("success sets a hardened refresh cookie", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		result := sampleAuthResult()
		env.service.On("Login", mock.Anything, mock.MatchedBy(func(in identity.LoginInput) bool {
			return in.Email == "ada@example.com" && in.Password == "s3cretpass" && in.IP != ""
		})).Return(result, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "s3cretpass"})

		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "access-1", data["accessToken"])
		user := data["user"].(map[string]any)
		assert.Equal(t, result.User.ID.String(), user["id"])
		assert.Equal(t, "USER", user["role"])
		assert.Equal(t, true, user["isVerified"])

		cookie := refreshCookieOf(w)
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.Equal(t, "/api/v1/auth", cookie.Path)
		assert.InDelta(t, 7*24*3600, cookie.MaxAge, 5)
	})

	t.Run("bad credentials", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("Login", mock.Anything, mock.Anything).Return(nil, domainIdentity.ErrInvalidCredentials)

		w := env.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, w))
	})

	t.Run("locked account", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("Login", mock.Anything, mock.Anything).Return(nil, domainIdentity.ErrAccountLocked)

		w := env.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"})

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "ACCOUNT_LOCKED", errorCode(t, w))
	})

	t.Run("unexpected failure hides the cause", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("Login", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		w := env.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, dto.ErrCodeInternal, errorCode(t, w))
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestAuthHandler_ForgotPassword(t *testing.T) {
	env := setupAuthHandler(t, nil)
	msg := "If an account exists for this email, a reset link has been sent"
	env.service.On("ForgotPassword", mock.Anything, "nobody@example.com").Return(msg, nil)

	w := env.do(http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "nobody@example.com"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, msg, decode(t, w)["data"].(map[string]any)["message"])
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	t.Run("success clears the refresh cookie", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("ResetPassword", mock.Anything, identity.ResetPasswordInput{Token: "tok", NewPassword: "newpass123"}).
			Return("Password has been reset", nil)

		w := env.do(http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
			"token": "tok", "newPassword": "newpass123", "confirmPassword": "newpass123",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		cookie := refreshCookieOf(w)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.Negative(t, cookie.MaxAge)
	})

	t.Run("confirmation must match", func(t *testing.T) {
		env := setupAuthHandler(t, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
			"token": "tok", "newPassword": "newpass123", "confirmPassword": "different1",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "confirmPassword")
	})

	t.Run("expired token", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("ResetPassword", mock.Anything, mock.Anything).Return("", domainIdentity.ErrInvalidResetToken)

		w := env.do(http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
			"token": "old", "newPassword": "newpass123", "confirmPassword": "newpass123",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_RESET_TOKEN", errorCode(t, w))
	})
}

func TestAuthHandler_RefreshToken(t *testing.T) {
	tokenResult := &identity.TokenResult{
		AccessToken:           "access-2",
		AccessTokenExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshToken:          "refresh-2",
		RefreshTokenExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	withCookie := func(value string) func(*http.Request) {
		return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "refreshToken", Value: value}) }
	}

	t.Run("reads the cookie and rotates it", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("RefreshTokens", mock.Anything, "refresh-1").Return(tokenResult, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/refresh-token", nil, withCookie("refresh-1"))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "access-2", decode(t, w)["data"].(map[string]any)["accessToken"])
		assert.Equal(t, "refresh-2", refreshCookieOf(w).Value)
	})

	t.Run("body token wins over cookie", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("RefreshTokens", mock.Anything, "from-body").Return(tokenResult, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{"refreshToken": "from-body"}, withCookie("refresh-1"))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token never reaches the service", func(t *testing.T) {
		env := setupAuthHandler(t, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/refresh-token", nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_REFRESH_TOKEN", errorCode(t, w))
		env.service.AssertNotCalled(t, "RefreshTokens", mock.Anything, mock.Anything)
	})

	t.Run("rejected token clears the cookie", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("RefreshTokens", mock.Anything, "revoked").Return(nil, domainIdentity.ErrInvalidRefreshToken)

		w := env.do(http.MethodPost, "/api/v1/auth/refresh-token", nil, withCookie("revoked"))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		cookie := refreshCookieOf(w)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	userID := uuid.New()

	t.Run("retires the presented access token", func(t *testing.T) {
		validator := stubValidator{token: "good", claims: claimsFor(userID, "jti-1", 10*time.Minute)}
		env := setupAuthHandler(t, validator)
		env.service.On("Logout", mock.Anything, mock.MatchedBy(func(in identity.LogoutInput) bool {
			return in.RefreshToken == "refresh-1" && in.AccessTokenJTI == "jti-1" &&
				in.AccessTokenTTL > 9*time.Minute && in.AccessTokenTTL <= 10*time.Minute
		})).Return("Logged out successfully", nil)

		w := env.do(http.MethodPost, "/api/v1/auth/logout", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer good")
			r.AddCookie(&http.Cookie{Name: "refreshToken", Value: "refresh-1"})
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, refreshCookieOf(w).Value)
	})

	t.Run("invalid bearer is ignored", func(t *testing.T) {
		validator := stubValidator{token: "good", claims: claimsFor(userID, "jti-1", time.Minute)}
		env := setupAuthHandler(t, validator)
		env.service.On("Logout", mock.Anything, identity.LogoutInput{RefreshToken: "refresh-1"}).
			Return("Logged out successfully", nil)

		w := env.do(http.MethodPost, "/api/v1/auth/logout", map[string]string{"refreshToken": "refresh-1"}, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer forged")
		})

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("nothing to revoke still succeeds", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		env.service.On("Logout", mock.Anything, identity.LogoutInput{}).Return("Logged out successfully", nil)

		w := env.do(http.MethodPost, "/api/v1/auth/logout", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthHandler_Me(t *testing.T) {
	t.Run("returns the authenticated user", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		info := sampleAuthResult().User
		env.service.On("GetCurrentUser", mock.Anything, info.ID).Return(&info, nil)

		w := env.do(http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
			r.Header.Set("X-Test-User", info.ID.String())
		})

		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "ada@example.com", data["email"])
	})

	t.Run("garbage user id", func(t *testing.T) {
		env := setupAuthHandler(t, nil)

		w := env.do(http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
			r.Header.Set("X-Test-User", "not-a-uuid")
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		env := setupAuthHandler(t, nil)
		id := uuid.New()
		env.service.On("GetCurrentUser", mock.Anything, id).Return(nil, domainIdentity.ErrUserNotFound)

		w := env.do(http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
			r.Header.Set("X-Test-User", id.String())
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNewRefreshCookie_SameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteLaxMode, NewRefreshCookie(config.CookieConfig{SameSite: "Lax"}).sameSite)
	assert.Equal(t, http.SameSiteNoneMode, NewRefreshCookie(config.CookieConfig{SameSite: "none"}).sameSite)
	rc := NewRefreshCookie(config.CookieConfig{})
	assert.Equal(t, http.SameSiteStrictMode, rc.sameSite)
	assert.Equal(t, "refreshToken", rc.name)
	assert.True(t, strings.HasPrefix(rc.path, "/"))
}
