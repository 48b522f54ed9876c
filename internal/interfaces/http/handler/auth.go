package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/identity"
	domainIdentity "github.com/storefront/backend/internal/domain/identity"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// AuthUseCases is the slice of the auth service the HTTP layer drives
type AuthUseCases interface {
	Signup(ctx context.Context, input identity.SignupInput) (string, error)
	VerifyOTP(ctx context.Context, input identity.VerifyOTPInput) (*identity.AuthResult, error)
	ResendOTP(ctx context.Context, email string) (string, error)
	Login(ctx context.Context, input identity.LoginInput) (*identity.AuthResult, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, input identity.ResetPasswordInput) (string, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*identity.TokenResult, error)
	Logout(ctx context.Context, input identity.LogoutInput) (string, error)
	GetCurrentUser(ctx context.Context, userID uuid.UUID) (*identity.UserInfo, error)
}

// AuthHandler handles the /auth endpoints
type AuthHandler struct {
	BaseHandler
	auth      AuthUseCases
	cookie    RefreshCookie
	validator middleware.AccessTokenValidator
}

// NewAuthHandler creates a new AuthHandler. The validator is used by logout
// to retire the caller's access token when one is presented.
func NewAuthHandler(auth AuthUseCases, cookie RefreshCookie, validator middleware.AccessTokenValidator, exposeErrors bool) *AuthHandler {
	return &AuthHandler{
		BaseHandler: BaseHandler{ExposeErrors: exposeErrors},
		auth:        auth,
		cookie:      cookie,
		validator:   validator,
	}
}

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	msg, err := h.auth.Signup(c.Request.Context(), identity.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.MessageData{Message: msg})
}

// VerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	result, err := h.auth.VerifyOTP(c.Request.Context(), identity.VerifyOTPInput{
		Email: req.Email,
		OTP:   req.OTP,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.cookie.Set(c, result.RefreshToken, result.RefreshTokenExpiresAt)
	h.Success(c, VerifyOTPResponse{
		Message:              identity.VerifiedMessage,
		AccessToken:          result.AccessToken,
		AccessTokenExpiresAt: result.AccessTokenExpiresAt,
	})
}

// ResendOTP handles POST /auth/resend-otp
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	msg, err := h.auth.ResendOTP(c.Request.Context(), req.Email)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.MessageData{Message: msg})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), identity.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		IP:       c.ClientIP(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.cookie.Set(c, result.RefreshToken, result.RefreshTokenExpiresAt)
	h.Success(c, LoginResponse{
		User:                 userResponseFrom(result.User),
		AccessToken:          result.AccessToken,
		AccessTokenExpiresAt: result.AccessTokenExpiresAt,
	})
}

// ForgotPassword handles POST /auth/forgot-password.
// The response is the same whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	msg, err := h.auth.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.MessageData{Message: msg})
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	msg, err := h.auth.ResetPassword(c.Request.Context(), identity.ResetPasswordInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.cookie.Clear(c)
	h.Success(c, dto.MessageData{Message: msg})
}

// RefreshToken handles POST /auth/refresh-token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		h.HandleError(c, domainIdentity.ErrInvalidRefreshToken)
		return
	}

	result, err := h.auth.RefreshTokens(c.Request.Context(), token)
	if err != nil {
		h.cookie.Clear(c)
		h.HandleError(c, err)
		return
	}

	h.cookie.Set(c, result.RefreshToken, result.RefreshTokenExpiresAt)
	h.Success(c, AccessTokenResponse{
		AccessToken:          result.AccessToken,
		AccessTokenExpiresAt: result.AccessTokenExpiresAt,
	})
}

// Logout handles POST /auth/logout. It always succeeds for unknown or
// already revoked tokens and always clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	input := identity.LogoutInput{RefreshToken: h.refreshTokenFrom(c)}

	if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), middleware.BearerPrefix); ok && bearer != "" && h.validator != nil {
		claims, err := h.validator.ValidateAccessToken(bearer)
		if err == nil {
			input.AccessTokenJTI = claims.ID
			input.AccessTokenTTL = claims.RemainingTTL(time.Now())
		} else {
			logger.FromContext(c.Request.Context()).Debug("Ignoring unusable access token on logout", zap.Error(err))
		}
	}

	msg, err := h.auth.Logout(c.Request.Context(), input)
	h.cookie.Clear(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.MessageData{Message: msg})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := uuid.Parse(middleware.GetJWTUserID(c))
	if err != nil {
		h.Unauthorized(c, "Invalid user in token")
		return
	}

	user, err := h.auth.GetCurrentUser(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, userResponseFrom(*user))
}

// refreshTokenFrom prefers a token in the JSON body and falls back to the cookie
func (h *AuthHandler) refreshTokenFrom(c *gin.Context) string {
	var req RefreshTokenRequest
	if c.Request.ContentLength != 0 {
		// an unreadable body just means no body token
		_ = c.ShouldBindJSON(&req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	return h.cookie.Read(c)
}
