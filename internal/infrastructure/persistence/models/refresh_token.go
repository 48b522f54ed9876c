package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/identity"
)

// RefreshTokenModel is the persistence model for refresh tokens
type RefreshTokenModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Token           string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_refresh_tokens_token"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;index:idx_refresh_tokens_user_id"`
	ExpiresAt       time.Time `gorm:"not null;index:idx_refresh_tokens_expires_at"`
	Revoked         bool      `gorm:"not null"`
	ReplacedByToken *string   `gorm:"type:varchar(128)"`
	CreatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}

// ToDomain converts the persistence model to a domain RefreshToken
func (m *RefreshTokenModel) ToDomain() *identity.RefreshToken {
	return &identity.RefreshToken{
		ID:              m.ID,
		Token:           m.Token,
		UserID:          m.UserID,
		ExpiresAt:       m.ExpiresAt,
		Revoked:         m.Revoked,
		ReplacedByToken: m.ReplacedByToken,
		CreatedAt:       m.CreatedAt,
	}
}

// RefreshTokenModelFromDomain creates a new persistence model from a domain RefreshToken
func RefreshTokenModelFromDomain(t *identity.RefreshToken) *RefreshTokenModel {
	return &RefreshTokenModel{
		ID:              t.ID,
		Token:           t.Token,
		UserID:          t.UserID,
		ExpiresAt:       t.ExpiresAt,
		Revoked:         t.Revoked,
		ReplacedByToken: t.ReplacedByToken,
		CreatedAt:       t.CreatedAt,
	}
}
