package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist invalidates access tokens before they expire
type TokenBlacklist interface {
	// AddToBlacklist blacklists a token's JTI; ttl should be the token's remaining lifetime
	AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error

	// IsBlacklisted checks if a token's JTI is in the blacklist
	IsBlacklisted(ctx context.Context, jti string) (bool, error)

	// InvalidateUserTokens rejects every token of the user issued before now.
	// Precision is one second, the resolution of the iat claim; tokens minted
	// in the same second as the invalidation stay valid so an immediate re-login works.
	InvalidateUserTokens(ctx context.Context, userID string, now time.Time, ttl time.Duration) error

	// IsUserTokenInvalidated reports whether a token issued at issuedAt predates the user's invalidation
	IsUserTokenInvalidated(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

const blacklistKeyPrefix = "auth:blacklist:"

// RedisTokenBlacklist implements TokenBlacklist using Redis key expiry
type RedisTokenBlacklist struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisTokenBlacklist creates a token blacklist on an existing Redis client
func NewRedisTokenBlacklist(client redis.UniversalClient) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{
		client:    client,
		keyPrefix: blacklistKeyPrefix,
	}
}

func (b *RedisTokenBlacklist) jtiKey(jti string) string {
	return b.keyPrefix + "jti:" + jti
}

func (b *RedisTokenBlacklist) userKey(userID string) string {
	return b.keyPrefix + "user:" + userID
}

// AddToBlacklist adds a token's JTI to the blacklist
func (b *RedisTokenBlacklist) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// IsBlacklisted checks if a token's JTI is in the blacklist
func (b *RedisTokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, b.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}

// InvalidateUserTokens stores the invalidation time in unix seconds
func (b *RedisTokenBlacklist) InvalidateUserTokens(ctx context.Context, userID string, now time.Time, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.userKey(userID), now.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to invalidate user tokens: %w", err)
	}
	return nil
}

// IsUserTokenInvalidated checks if a token was issued before the user's invalidation time
func (b *RedisTokenBlacklist) IsUserTokenInvalidated(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	raw, err := b.client.Get(ctx, b.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user token invalidation: %w", err)
	}

	invalidatedAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("failed to parse invalidation timestamp: %w", err)
	}
	return issuedAt.Unix() < invalidatedAt, nil
}

var _ TokenBlacklist = (*RedisTokenBlacklist)(nil)

// inMemorySweepInterval bounds how often writes scan for lapsed entries
const inMemorySweepInterval = time.Minute

// InMemoryTokenBlacklist is a process-local blacklist used when Redis is disabled.
// Entries are not shared between instances.
type InMemoryTokenBlacklist struct {
	mu          sync.Mutex
	jtis        map[string]time.Time // jti -> entry expiry
	invalidated map[string]userInvalidation
	lastSweep   time.Time
	now         func() time.Time
}

// userInvalidation is a user's invalidation time; a zero expiresAt never lapses
type userInvalidation struct {
	at        time.Time
	expiresAt time.Time
}

// NewInMemoryTokenBlacklist creates a new in-memory token blacklist
func NewInMemoryTokenBlacklist() *InMemoryTokenBlacklist {
	return &InMemoryTokenBlacklist{
		jtis:        make(map[string]time.Time),
		invalidated: make(map[string]userInvalidation),
		now:         time.Now,
	}
}

// AddToBlacklist adds a token's JTI to the in-memory blacklist
func (b *InMemoryTokenBlacklist) AddToBlacklist(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.sweep(now)
	b.jtis[jti] = now.Add(ttl)
	return nil
}

// IsBlacklisted checks if a token's JTI is blacklisted and the entry has not lapsed
func (b *InMemoryTokenBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiry, ok := b.jtis[jti]
	if !ok {
		return false, nil
	}
	if !b.now().Before(expiry) {
		delete(b.jtis, jti)
		return false, nil
	}
	return true, nil
}

// InvalidateUserTokens records the invalidation time for a user. The mark
// lapses after ttl, like the Redis key; ttl <= 0 keeps it forever.
func (b *InMemoryTokenBlacklist) InvalidateUserTokens(_ context.Context, userID string, now time.Time, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweep(b.now())
	mark := userInvalidation{at: now}
	if ttl > 0 {
		mark.expiresAt = b.now().Add(ttl)
	}
	b.invalidated[userID] = mark
	return nil
}

// IsUserTokenInvalidated compares at second precision, matching JWT iat
func (b *InMemoryTokenBlacklist) IsUserTokenInvalidated(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mark, ok := b.invalidated[userID]
	if !ok {
		return false, nil
	}
	if mark.lapsed(b.now()) {
		delete(b.invalidated, userID)
		return false, nil
	}
	return issuedAt.Unix() < mark.at.Unix(), nil
}

func (m userInvalidation) lapsed(now time.Time) bool {
	return !m.expiresAt.IsZero() && !now.Before(m.expiresAt)
}

// sweep drops lapsed entries at most once per inMemorySweepInterval.
// Callers hold b.mu.
func (b *InMemoryTokenBlacklist) sweep(now time.Time) {
	if now.Sub(b.lastSweep) < inMemorySweepInterval {
		return
	}
	b.lastSweep = now
	for jti, expiry := range b.jtis {
		if !now.Before(expiry) {
			delete(b.jtis, jti)
		}
	}
	for userID, mark := range b.invalidated {
		if mark.lapsed(now) {
			delete(b.invalidated, userID)
		}
	}
}

var _ TokenBlacklist = (*InMemoryTokenBlacklist)(nil)
