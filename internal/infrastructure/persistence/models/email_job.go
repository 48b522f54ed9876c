package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/notification"
)

// EmailJobModel is the persistence model for queued emails
type EmailJobModel struct {
	ID            uuid.UUID              `gorm:"type:uuid;primaryKey"`
	Recipient     string                 `gorm:"type:varchar(254);not null"`
	Subject       string                 `gorm:"type:varchar(255);not null"`
	Template      string                 `gorm:"type:varchar(100);not null"`
	Context       []byte                 `gorm:"type:jsonb;not null"`
	Status        notification.JobStatus `gorm:"type:varchar(20);not null;index:idx_email_jobs_status_created,priority:1"`
	Attempts      int                    `gorm:"not null"`
	MaxAttempts   int                    `gorm:"not null"`
	BaseBackoffMs int64                  `gorm:"not null"`
	LastError     string                 `gorm:"type:text"`
	NextRetryAt   *time.Time             `gorm:"index:idx_email_jobs_next_retry"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_email_jobs_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EmailJobModel) TableName() string {
	return "email_jobs"
}

// ToDomain converts the persistence model to a domain EmailJob
func (m *EmailJobModel) ToDomain() (*notification.EmailJob, error) {
	data := map[string]any{}
	if len(m.Context) > 0 {
		if err := json.Unmarshal(m.Context, &data); err != nil {
			return nil, fmt.Errorf("decode email job %s context: %w", m.ID, err)
		}
	}
	return &notification.EmailJob{
		ID:          m.ID,
		To:          m.Recipient,
		Subject:     m.Subject,
		Template:    m.Template,
		Context:     data,
		Status:      m.Status,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		BaseBackoff: time.Duration(m.BaseBackoffMs) * time.Millisecond,
		LastError:   m.LastError,
		NextRetryAt: m.NextRetryAt,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

// EmailJobModelFromDomain creates a new persistence model from a domain EmailJob
func EmailJobModelFromDomain(j *notification.EmailJob) (*EmailJobModel, error) {
	payload, err := json.Marshal(j.Context)
	if err != nil {
		return nil, fmt.Errorf("encode email job %s context: %w", j.ID, err)
	}
	return &EmailJobModel{
		ID:            j.ID,
		Recipient:     j.To,
		Subject:       j.Subject,
		Template:      j.Template,
		Context:       payload,
		Status:        j.Status,
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		BaseBackoffMs: j.BaseBackoff.Milliseconds(),
		LastError:     j.LastError,
		NextRetryAt:   j.NextRetryAt,
		ProcessedAt:   j.ProcessedAt,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}, nil
}
