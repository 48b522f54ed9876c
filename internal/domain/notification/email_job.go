// Package notification contains the durable email job queue model.
package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of an email job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusSent       JobStatus = "SENT"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusDead       JobStatus = "DEAD"
)

// Default retry configuration
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = time.Second
)

// Template names known to the mailer
const (
	TemplateVerifyEmail   = "verify-email"
	TemplateResetPassword = "reset-password"
)

// ErrInvalidJob is returned when a job is missing its recipient or template
var ErrInvalidJob = errors.New("email job requires a recipient, subject and template")

// ErrJobNotClaimable is returned when a finished or exhausted job is claimed
var ErrJobNotClaimable = errors.New("email job cannot be claimed")

// EmailJob is a queued transactional email.
// Context holds the template data and is stored as JSON.
type EmailJob struct {
	ID          uuid.UUID
	To          string
	Subject     string
	Template    string
	Context     map[string]any
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	BaseBackoff time.Duration
	LastError   string
	NextRetryAt *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewEmailJob creates a pending job
func NewEmailJob(to, subject, template string, data map[string]any) (*EmailJob, error) {
	to = strings.TrimSpace(to)
	if to == "" || subject == "" || template == "" {
		return nil, ErrInvalidJob
	}
	if data == nil {
		data = map[string]any{}
	}
	now := time.Now()
	return &EmailJob{
		ID:          uuid.New(),
		To:          to,
		Subject:     subject,
		Template:    template,
		Context:     data,
		Status:      JobStatusPending,
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanRetry returns true if the job failed and has attempts left
func (j *EmailJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Attempts < j.MaxAttempts
}

// MarkProcessing marks the job as claimed by a consumer.
// PROCESSING jobs are claimable again; the caller only offers them once the
// previous consumer's visibility timeout has passed.
func (j *EmailJob) MarkProcessing(now time.Time) error {
	if j.Status != JobStatusPending && j.Status != JobStatusProcessing && !j.CanRetry() {
		return ErrJobNotClaimable
	}
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	return nil
}

// MarkSent marks the job as delivered to the mail transport
func (j *EmailJob) MarkSent() {
	now := time.Now()
	j.Status = JobStatusSent
	j.ProcessedAt = &now
	j.NextRetryAt = nil
	j.UpdatedAt = now
}

// MarkFailed records a failed attempt. Once MaxAttempts is reached the job
// becomes dead; otherwise the next attempt is scheduled with exponential backoff.
func (j *EmailJob) MarkFailed(errMsg string) {
	j.Attempts++
	j.LastError = errMsg
	now := time.Now()
	j.UpdatedAt = now

	if j.Attempts >= j.MaxAttempts {
		j.Status = JobStatusDead
		j.NextRetryAt = nil
		j.ProcessedAt = &now
		return
	}

	j.Status = JobStatusFailed
	nextRetry := now.Add(j.Backoff())
	j.NextRetryAt = &nextRetry
}

// Backoff returns the delay before the next attempt: base, 2*base, 4*base, ...
func (j *EmailJob) Backoff() time.Duration {
	base := j.BaseBackoff
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if j.Attempts <= 0 {
		return base
	}
	return base * time.Duration(1<<uint(j.Attempts-1))
}

// IsDead returns true once all attempts are exhausted
func (j *EmailJob) IsDead() bool {
	return j.Status == JobStatusDead
}

// JobRepository defines persistence for the email queue
type JobRepository interface {
	// Enqueue persists one or more new jobs
	Enqueue(ctx context.Context, jobs ...*EmailJob) error
	// ClaimDue atomically claims up to limit pending jobs and failed jobs whose
	// retry time has passed, marking them as processing
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*EmailJob, error)
	// Update persists the state of a processed job
	Update(ctx context.Context, job *EmailJob) error
	// DeleteFinishedBefore removes sent and dead jobs processed before the given time
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns the number of jobs per status
	CountByStatus(ctx context.Context) (map[JobStatus]int64, error)
}
