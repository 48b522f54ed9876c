package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
	"github.com/storefront/backend/internal/domain/identity"
)

const (
	refreshTokenBytes = 48
	resetTokenBytes   = 32
)

// GenerateRefreshToken returns 48 random bytes, base64url encoded without padding
func GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateResetToken returns a raw hex token for the email link and its SHA-256 digest for storage
func GenerateResetToken() (raw, digest string, err error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate reset token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken returns the hex SHA-256 digest of a token
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// OTPGenerator produces numeric one-time codes from a crypto-secure source
type OTPGenerator struct {
	next func() string
}

// NewOTPGenerator creates a generator of identity.OTPLength digit codes
func NewOTPGenerator() (*OTPGenerator, error) {
	next, err := nanoid.CustomASCII("0123456789", identity.OTPLength)
	if err != nil {
		return nil, fmt.Errorf("create otp generator: %w", err)
	}
	return &OTPGenerator{next: next}, nil
}

// Generate returns a new code
func (g *OTPGenerator) Generate() string {
	return g.next()
}
