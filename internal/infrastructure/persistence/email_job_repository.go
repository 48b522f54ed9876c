package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/notification"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultVisibilityTimeout is how long a claimed job may stay PROCESSING
// before another consumer is allowed to claim it again.
const DefaultVisibilityTimeout = 5 * time.Minute

// GormEmailJobRepository implements notification.JobRepository using GORM
type GormEmailJobRepository struct {
	db                *gorm.DB
	visibilityTimeout time.Duration
}

// EmailJobRepositoryOption configures a GormEmailJobRepository
type EmailJobRepositoryOption func(*GormEmailJobRepository)

// WithVisibilityTimeout overrides DefaultVisibilityTimeout
func WithVisibilityTimeout(d time.Duration) EmailJobRepositoryOption {
	return func(r *GormEmailJobRepository) {
		if d > 0 {
			r.visibilityTimeout = d
		}
	}
}

// NewGormEmailJobRepository creates a new email job repository
func NewGormEmailJobRepository(db *gorm.DB, opts ...EmailJobRepositoryOption) *GormEmailJobRepository {
	r := &GormEmailJobRepository{db: db, visibilityTimeout: DefaultVisibilityTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enqueue stores new jobs in a single insert
func (r *GormEmailJobRepository) Enqueue(ctx context.Context, jobs ...*notification.EmailJob) error {
	if len(jobs) == 0 {
		return nil
	}
	rows := make([]*models.EmailJobModel, 0, len(jobs))
	for _, job := range jobs {
		m, err := models.EmailJobModelFromDomain(job)
		if err != nil {
			return err
		}
		rows = append(rows, m)
	}
	return translateError(r.db.WithContext(ctx).Create(&rows).Error)
}

// ClaimDue locks up to limit runnable jobs and moves them to PROCESSING.
// Runnable means PENDING, FAILED with attempts left and an elapsed retry delay,
// or PROCESSING for longer than the visibility timeout (a consumer died mid-send).
// SKIP LOCKED lets several consumers poll the table without double claims.
func (r *GormEmailJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*notification.EmailJob, error) {
	var jobs []*notification.EmailJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.EmailJobModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? OR (status = ? AND attempts < max_attempts AND next_retry_at <= ?) OR (status = ? AND updated_at <= ?)",
				notification.JobStatusPending,
				notification.JobStatusFailed, now,
				notification.JobStatusProcessing, now.Add(-r.visibilityTimeout)).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(rows))
		for i := range rows {
			job, err := rows[i].ToDomain()
			if err != nil {
				return err
			}
			if job.MarkProcessing(now) != nil {
				continue
			}
			jobs = append(jobs, job)
			ids = append(ids, job.ID)
		}
		if len(ids) == 0 {
			return nil
		}

		return tx.Model(&models.EmailJobModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     notification.JobStatusProcessing,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Update persists the delivery state of a job
func (r *GormEmailJobRepository) Update(ctx context.Context, job *notification.EmailJob) error {
	result := r.db.WithContext(ctx).
		Model(&models.EmailJobModel{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":        job.Status,
			"attempts":      job.Attempts,
			"last_error":    job.LastError,
			"next_retry_at": job.NextRetryAt,
			"processed_at":  job.ProcessedAt,
			"updated_at":    job.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound)
	}
	return nil
}

// DeleteFinishedBefore removes SENT and DEAD jobs last touched before the cutoff
func (r *GormEmailJobRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]notification.JobStatus{notification.JobStatusSent, notification.JobStatusDead}, before).
		Delete(&models.EmailJobModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns the number of jobs in each status
func (r *GormEmailJobRepository) CountByStatus(ctx context.Context) (map[notification.JobStatus]int64, error) {
	type statusCount struct {
		Status notification.JobStatus
		Count  int64
	}
	var rows []statusCount

	if err := r.db.WithContext(ctx).
		Model(&models.EmailJobModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[notification.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

var _ notification.JobRepository = (*GormEmailJobRepository)(nil)
