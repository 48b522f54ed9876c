package identity

import (
	"crypto/subtle"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the authorization level of a user
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Password and hashing limits
const (
	DefaultBcryptCost = 12
	MinPasswordLength = 8
	// bcrypt only looks at the first 72 bytes
	MaxPasswordLength = 72
	MaxNameLength     = 100
	MaxEmailLength    = 254
	OTPLength         = 6
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var emailCaser = cases.Lower(language.Und)

// User represents a storefront account
// It is the aggregate root for credentials, verification and lockout state
type User struct {
	shared.BaseAggregateRoot
	Email                string
	PasswordHash         string
	Name                 string
	Role                 Role
	IsVerified           bool
	OTP                  *string
	OTPExpires           *time.Time
	LoginAttempts        int
	LockoutUntil         *time.Time
	PasswordResetToken   *string // SHA-256 digest, never the raw token
	PasswordResetExpires *time.Time
}

// NewUser creates an unverified user holding a pending verification code.
// passwordHash must come from HashPassword.
func NewUser(email, passwordHash, name, otp string, otpTTL time.Duration, now time.Time) (*User, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) > MaxNameLength {
		return nil, shared.NewDomainError("INVALID_NAME", "Name cannot exceed 100 characters")
	}
	if passwordHash == "" {
		return nil, shared.NewDomainError("INVALID_PASSWORD", "Password hash is required")
	}

	user := &User{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Email:             email,
		PasswordHash:      passwordHash,
		Name:              name,
		Role:              RoleUser,
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := user.setOTP(otp, otpTTL, now); err != nil {
		return nil, err
	}

	user.AddDomainEvent(NewUserRegisteredEvent(user))

	return user, nil
}

// ReissueVerificationCode replaces the pending verification code of an unverified user
func (u *User) ReissueVerificationCode(otp string, ttl time.Duration, now time.Time) error {
	if u.IsVerified {
		return ErrAlreadyVerified
	}
	if err := u.setOTP(otp, ttl, now); err != nil {
		return err
	}
	u.AddDomainEvent(NewVerificationCodeReissuedEvent(u))
	return nil
}

func (u *User) setOTP(otp string, ttl time.Duration, now time.Time) error {
	if !isNumericCode(otp, OTPLength) {
		return shared.NewDomainError("INVALID_OTP", "OTP must be a 6-digit code")
	}
	expires := now.Add(ttl)
	u.OTP = &otp
	u.OTPExpires = &expires
	u.Touch(now)
	return nil
}

// VerifyOTP checks the code against the pending one and marks the user verified.
// Missing, mismatching and expired codes all fail with ErrInvalidOTP.
func (u *User) VerifyOTP(otp string, now time.Time) error {
	if u.OTP == nil || u.OTPExpires == nil {
		return ErrInvalidOTP
	}
	if subtle.ConstantTimeCompare([]byte(*u.OTP), []byte(otp)) != 1 {
		return ErrInvalidOTP
	}
	if !now.Before(*u.OTPExpires) {
		return ErrInvalidOTP
	}

	u.OTP = nil
	u.OTPExpires = nil
	u.IsVerified = true
	u.Touch(now)
	return nil
}

// IsLockedOut returns true while a lockout is in effect
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}

// RecordLoginFailure counts a failed password check.
// Once the counter reaches maxAttempts the account is locked for lockDuration;
// below it any stale lockout is cleared. Returns true if the account is now locked.
func (u *User) RecordLoginFailure(maxAttempts int, lockDuration time.Duration, now time.Time) bool {
	u.LoginAttempts++
	u.Touch(now)

	if u.LoginAttempts >= maxAttempts {
		until := now.Add(lockDuration)
		u.LockoutUntil = &until
		return true
	}

	u.LockoutUntil = nil
	return false
}

// RecordLoginSuccess clears the failure counter and any lockout
func (u *User) RecordLoginSuccess(now time.Time) {
	u.LoginAttempts = 0
	u.LockoutUntil = nil
	u.Touch(now)
}

// VerifyPassword verifies if the provided password matches
func (u *User) VerifyPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// RequestPasswordReset stores the digest of a freshly issued reset token.
// resetURL carries the raw token and only travels inside the emitted event.
func (u *User) RequestPasswordReset(tokenHash, resetURL string, ttl time.Duration, now time.Time) {
	expires := now.Add(ttl)
	u.PasswordResetToken = &tokenHash
	u.PasswordResetExpires = &expires
	u.Touch(now)

	u.AddDomainEvent(NewPasswordResetRequestedEvent(u, resetURL, expires))
}

// ResetPassword replaces the password if tokenHash matches an unexpired reset request.
// The reset fields are cleared so the token works once.
func (u *User) ResetPassword(tokenHash, newPasswordHash string, now time.Time) error {
	if u.PasswordResetToken == nil || u.PasswordResetExpires == nil {
		return ErrInvalidResetToken
	}
	if subtle.ConstantTimeCompare([]byte(*u.PasswordResetToken), []byte(tokenHash)) != 1 {
		return ErrInvalidResetToken
	}
	if !now.Before(*u.PasswordResetExpires) {
		return ErrInvalidResetToken
	}

	u.PasswordHash = newPasswordHash
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	u.LoginAttempts = 0
	u.LockoutUntil = nil
	u.Touch(now)

	u.AddDomainEvent(NewUserPasswordChangedEvent(u, now))
	return nil
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return emailCaser.String(strings.TrimSpace(email))
}

// HashPassword validates and hashes a plaintext password with bcrypt
func HashPassword(password string, cost int) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", shared.NewDomainError("INVALID_PASSWORD", "Password cannot exceed 72 bytes")
		}
		return "", err
	}
	return string(hash), nil
}

// ValidatePassword checks the length policy
func ValidatePassword(password string) error {
	if password == "" {
		return shared.NewDomainError("INVALID_PASSWORD", "Password cannot be empty")
	}
	if len(password) < MinPasswordLength {
		return shared.NewDomainError("INVALID_PASSWORD", "Password must be at least 8 characters")
	}
	if len(password) > MaxPasswordLength {
		return shared.NewDomainError("INVALID_PASSWORD", "Password cannot exceed 72 bytes")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 254 characters")
	}
	if !emailRegex.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}

func isNumericCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
