package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/identity"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/ratelimit"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("test", "/test").
		GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") }).
		POST("/echo", func(c *gin.Context) { c.String(http.StatusCreated, "created") })

	NewRouter(engine).Register(group).Setup()

	w := serve(engine, http.MethodGet, "/api/v1/test/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/api/v1/test/echo", "").Code)
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("auth", "/auth")
		assert.Equal(t, "auth", g.Name())
		assert.Equal(t, "/auth", g.Prefix())
	})

	t.Run("nil middleware is skipped", func(t *testing.T) {
		g := NewDomainGroup("test", "/test").Use(nil, func(c *gin.Context) { c.Next() })
		assert.Len(t, g.middleware, 1)
	})

	t.Run("subgroup middleware does not leak to siblings", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test")
		g.Group("guarded", "").
			Use(func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }).
			GET("/private", func(c *gin.Context) { c.Status(http.StatusOK) })
		g.Group("open", "").
			GET("/public", func(c *gin.Context) { c.Status(http.StatusOK) })

		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/v1/test/private", "").Code)
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/test/public", "").Code)
	})
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(EngineConfig{
		ServiceName: "storefront-test",
		CORS:        middleware.DefaultCORSConfig(),
		MaxBodySize: 64,
	})
	require.NoError(t, err)
	engine.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			middleware.HandleBindError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("unknown route is a json 404 with request id", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/nope", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), `"NOT_FOUND"`)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("security headers are set", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/nope", "")
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		w := serve(engine, http.MethodPost, "/echo", `{"k":"`+strings.Repeat("x", 200)+`"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, serve(engine, http.MethodGet, "/echo", "").Code)
	})
}

func TestNewEngine_BadTrustedProxy(t *testing.T) {
	_, err := NewEngine(EngineConfig{TrustedProxies: []string{"not-an-ip"}})
	assert.Error(t, err)
}

// fakeAuth answers every use case with a fixed message
type fakeAuth struct{}

func (fakeAuth) Signup(context.Context, identity.SignupInput) (string, error) { return "ok", nil }
func (fakeAuth) VerifyOTP(context.Context, identity.VerifyOTPInput) (*identity.AuthResult, error) {
	return &identity.AuthResult{RefreshTokenExpiresAt: time.Now().Add(time.Hour)}, nil
}
func (fakeAuth) ResendOTP(context.Context, string) (string, error) { return "ok", nil }
func (fakeAuth) Login(context.Context, identity.LoginInput) (*identity.AuthResult, error) {
	return &identity.AuthResult{RefreshTokenExpiresAt: time.Now().Add(time.Hour)}, nil
}
func (fakeAuth) ForgotPassword(context.Context, string) (string, error) { return "ok", nil }
func (fakeAuth) ResetPassword(context.Context, identity.ResetPasswordInput) (string, error) {
	return "ok", nil
}
func (fakeAuth) RefreshTokens(context.Context, string) (*identity.TokenResult, error) {
	return &identity.TokenResult{RefreshTokenExpiresAt: time.Now().Add(time.Hour)}, nil
}
func (fakeAuth) Logout(context.Context, identity.LogoutInput) (string, error) { return "ok", nil }
func (fakeAuth) GetCurrentUser(_ context.Context, id uuid.UUID) (*identity.UserInfo, error) {
	return &identity.UserInfo{ID: id}, nil
}

func TestMount(t *testing.T) {
	middleware.SetupValidator()
	engine, err := NewEngine(EngineConfig{CORS: middleware.DefaultCORSConfig()})
	require.NoError(t, err)

	authHandler := handler.NewAuthHandler(fakeAuth{}, handler.NewRefreshCookie(config.CookieConfig{}), nil, false)
	denyAll := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	limit := middleware.RateLimit(ratelimit.NewMemoryLimiter(2, time.Minute), nil)

	Mount(engine, AuthRoutes(authHandler, denyAll, limit), handler.NewSystemHandler("storefront", nil))

	t.Run("health is outside the api prefix", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health", "").Code)
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/system/ping", "").Code)
	})

	t.Run("me requires authentication", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/api/v1/auth/me", "").Code)
	})

	t.Run("public auth endpoints are throttled", func(t *testing.T) {
		body := `{"email":"ada@example.com"}`
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/api/v1/auth/forgot-password", body).Code)
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/api/v1/auth/resend-otp", body).Code)

		w := serve(engine, http.MethodPost, "/api/v1/auth/forgot-password", body)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})
}
