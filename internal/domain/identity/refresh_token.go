package identity

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a persisted opaque refresh credential.
// Records are only mutated by the repository, which revokes them or links them to their successor.
type RefreshToken struct {
	ID              uuid.UUID
	Token           string
	UserID          uuid.UUID
	ExpiresAt       time.Time
	Revoked         bool
	ReplacedByToken *string
	CreatedAt       time.Time
}

// NewRefreshToken creates an active refresh token record
func NewRefreshToken(userID uuid.UUID, token string, expiresAt, now time.Time) *RefreshToken {
	return &RefreshToken{
		ID:        uuid.New(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
}

// IsExpired returns true once the expiry has passed
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive returns true if the token can still be exchanged
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}
