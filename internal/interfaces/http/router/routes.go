package router

import (
	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/interfaces/http/handler"
)

// AuthRoutes builds the /auth group. requireAuth guards /me; limit, when
// non-nil, throttles every public endpoint of the group.
func AuthRoutes(h *handler.AuthHandler, requireAuth, limit gin.HandlerFunc) *DomainGroup {
	auth := NewDomainGroup("auth", "/auth")

	public := auth.Group("public", "").Use(limit)
	public.POST("/signup", h.Signup).
		POST("/verify-otp", h.VerifyOTP).
		POST("/resend-otp", h.ResendOTP).
		POST("/login", h.Login).
		POST("/forgot-password", h.ForgotPassword).
		POST("/reset-password", h.ResetPassword).
		POST("/refresh-token", h.RefreshToken).
		POST("/logout", h.Logout)

	auth.Group("session", "").Use(requireAuth).GET("/me", h.Me)

	return auth
}

// SystemRoutes builds the /system group
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/info", h.GetSystemInfo).
		GET("/ping", h.Ping)
}

// Mount registers every route on the engine. /health lives outside the
// versioned prefix for load balancer probes.
func Mount(engine *gin.Engine, auth *DomainGroup, system *handler.SystemHandler) {
	engine.GET("/health", system.Health)

	NewRouter(engine).
		Register(auth).
		Register(SystemRoutes(system)).
		Setup()
}
