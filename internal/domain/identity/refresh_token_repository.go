package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenRepository defines persistence for refresh tokens
type RefreshTokenRepository interface {
	// Create stores a new refresh token
	Create(ctx context.Context, token *RefreshToken) error

	// FindByToken looks up a token by its opaque value
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)

	// Rotate atomically revokes the active record holding oldToken, links it to
	// successor and stores successor. If oldToken is no longer active at now
	// (revoked, expired or rotated by a concurrent caller) it returns
	// ErrInvalidRefreshToken and stores nothing.
	Rotate(ctx context.Context, oldToken string, successor *RefreshToken, now time.Time) error

	// Revoke marks the token revoked. Returns false if no active record matched.
	Revoke(ctx context.Context, token string) (bool, error)

	// RevokeAllForUser revokes every active token owned by the user
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// DeleteExpired removes tokens that expired before the given time
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
