package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/identity"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRefreshTokenRepository implements identity.RefreshTokenRepository using GORM
type GormRefreshTokenRepository struct {
	db *gorm.DB
}

// NewGormRefreshTokenRepository creates a new GormRefreshTokenRepository
func NewGormRefreshTokenRepository(db *gorm.DB) *GormRefreshTokenRepository {
	return &GormRefreshTokenRepository{db: db}
}

// Create stores a new refresh token
func (r *GormRefreshTokenRepository) Create(ctx context.Context, token *identity.RefreshToken) error {
	return translateError(r.db.WithContext(ctx).Create(models.RefreshTokenModelFromDomain(token)).Error)
}

// FindByToken looks up a token by its opaque value
func (r *GormRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*identity.RefreshToken, error) {
	var model models.RefreshTokenModel
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Rotate revokes oldToken and stores successor in one transaction.
// The revoke is a conditional update, so of several concurrent callers
// presenting the same token only one sees a row affected.
func (r *GormRefreshTokenRepository) Rotate(ctx context.Context, oldToken string, successor *identity.RefreshToken, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.RefreshTokenModel{}).
			Where("token = ? AND revoked = ? AND expires_at > ?", oldToken, false, now).
			Updates(map[string]any{
				"revoked":           true,
				"replaced_by_token": successor.Token,
			})
		if result.Error != nil {
			return translateError(result.Error)
		}
		if result.RowsAffected == 0 {
			return identity.ErrInvalidRefreshToken
		}
		return translateError(tx.Create(models.RefreshTokenModelFromDomain(successor)).Error)
	})
}

// Revoke marks a single token revoked
func (r *GormRefreshTokenRepository) Revoke(ctx context.Context, token string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RefreshTokenModel{}).
		Where("token = ? AND revoked = ?", token, false).
		Update("revoked", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RevokeAllForUser revokes every active token owned by the user
func (r *GormRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RefreshTokenModel{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	return result.RowsAffected, result.Error
}

// DeleteExpired removes tokens that expired before the given time
func (r *GormRefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.RefreshTokenModel{})
	return result.RowsAffected, result.Error
}

var _ identity.RefreshTokenRepository = (*GormRefreshTokenRepository)(nil)
