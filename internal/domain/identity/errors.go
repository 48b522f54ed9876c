package identity

import "github.com/storefront/backend/internal/domain/shared"

// Identity errors. Messages are safe to return to clients.
var (
	ErrInvalidCredentials  = shared.NewDomainError("INVALID_CREDENTIALS", "Invalid email or password")
	ErrAccountLocked       = shared.NewDomainError("ACCOUNT_LOCKED", "Too many failed login attempts, please try again later")
	ErrEmailAlreadyExists  = shared.NewDomainError("EMAIL_ALREADY_EXISTS", "An account with this email already exists")
	ErrInvalidOTP          = shared.NewDomainError("INVALID_OTP", "Invalid or expired OTP")
	ErrAlreadyVerified     = shared.NewDomainError("ALREADY_VERIFIED", "Account is already verified")
	ErrInvalidResetToken   = shared.NewDomainError("INVALID_RESET_TOKEN", "Password reset token is invalid or has expired")
	ErrInvalidRefreshToken = shared.NewDomainError("INVALID_REFRESH_TOKEN", "Invalid or expired refresh token")
	ErrUserNotFound        = shared.NewDomainError("NOT_FOUND", "User not found")
)
