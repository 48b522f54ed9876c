package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/identity"
)

// SignupInput contains the input for account registration
type SignupInput struct {
	Email    string
	Password string
	Name     string
}

// VerifyOTPInput contains the input for email verification
type VerifyOTPInput struct {
	Email string
	OTP   string
}

// LoginInput contains the input for user login
type LoginInput struct {
	Email    string
	Password string
	IP       string // client IP, logged only
}

// ResetPasswordInput contains the input for completing a password reset.
// Password confirmation is checked before the service is called.
type ResetPasswordInput struct {
	Token       string
	NewPassword string
}

// LogoutInput contains the input for user logout
type LogoutInput struct {
	RefreshToken string
	// Access token being retired with the session, optional
	AccessTokenJTI string
	AccessTokenTTL time.Duration
}

// UserInfo is the public view of a user
type UserInfo struct {
	ID         uuid.UUID
	Email      string
	Name       string
	Role       identity.Role
	IsVerified bool
}

// AuthResult is returned by operations that start a session
type AuthResult struct {
	User                  UserInfo
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// TokenResult is returned by a refresh
type TokenResult struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

func userInfoFrom(u *identity.User) UserInfo {
	return UserInfo{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		IsVerified: u.IsVerified,
	}
}
