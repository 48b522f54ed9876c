package identity

import (
	"time"

	"github.com/storefront/backend/internal/domain/shared"
)

// Aggregate type constant for User
const AggregateTypeUser = "User"

// User domain event types
const (
	EventTypeUserRegistered           = "UserRegistered"
	EventTypeVerificationCodeReissued = "VerificationCodeReissued"
	EventTypePasswordResetRequested   = "PasswordResetRequested"
	EventTypeUserPasswordChanged      = "UserPasswordChanged"
)

// UserRegisteredEvent is published when an account is created.
// It carries the verification code so the welcome email can include it.
type UserRegisteredEvent struct {
	shared.BaseDomainEvent
	Email string `json:"email"`
	Name  string `json:"name"`
	OTP   string `json:"otp"`
}

// NewUserRegisteredEvent creates a new UserRegisteredEvent
func NewUserRegisteredEvent(user *User) *UserRegisteredEvent {
	return &UserRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUserRegistered, AggregateTypeUser, user.ID),
		Email:           user.Email,
		Name:            user.Name,
		OTP:             derefString(user.OTP),
	}
}

// VerificationCodeReissuedEvent is published when an unverified user asks for a new code
type VerificationCodeReissuedEvent struct {
	shared.BaseDomainEvent
	Email string `json:"email"`
	Name  string `json:"name"`
	OTP   string `json:"otp"`
}

// NewVerificationCodeReissuedEvent creates a new VerificationCodeReissuedEvent
func NewVerificationCodeReissuedEvent(user *User) *VerificationCodeReissuedEvent {
	return &VerificationCodeReissuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVerificationCodeReissued, AggregateTypeUser, user.ID),
		Email:           user.Email,
		Name:            user.Name,
		OTP:             derefString(user.OTP),
	}
}

// PasswordResetRequestedEvent is published when a reset token is issued.
// ResetURL embeds the raw token; the stored digest never leaves the server.
type PasswordResetRequestedEvent struct {
	shared.BaseDomainEvent
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewPasswordResetRequestedEvent creates a new PasswordResetRequestedEvent
func NewPasswordResetRequestedEvent(user *User, resetURL string, expiresAt time.Time) *PasswordResetRequestedEvent {
	return &PasswordResetRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePasswordResetRequested, AggregateTypeUser, user.ID),
		Email:           user.Email,
		Name:            user.Name,
		ResetURL:        resetURL,
		ExpiresAt:       expiresAt,
	}
}

// UserPasswordChangedEvent is published after a successful password reset
type UserPasswordChangedEvent struct {
	shared.BaseDomainEvent
	Email     string    `json:"email"`
	ChangedAt time.Time `json:"changed_at"`
}

// NewUserPasswordChangedEvent creates a new UserPasswordChangedEvent
func NewUserPasswordChangedEvent(user *User, changedAt time.Time) *UserPasswordChangedEvent {
	return &UserPasswordChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUserPasswordChanged, AggregateTypeUser, user.ID),
		Email:           user.Email,
		ChangedAt:       changedAt,
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
