// Package notification turns domain events into queued transactional emails.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/storefront/backend/internal/domain/identity"
	"github.com/storefront/backend/internal/domain/notification"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Email subjects
const (
	SubjectVerifyEmail   = "Verify your email"
	SubjectResetPassword = "Reset your password"
)

// DispatcherConfig controls the retry policy stamped on new jobs
type DispatcherConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// Dispatcher enqueues an email job for every event that needs one.
// Events without an email mapping are ignored.
type Dispatcher struct {
	jobs   notification.JobRepository
	config DispatcherConfig
	logger *zap.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(jobs notification.JobRepository, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = notification.DefaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = notification.DefaultBaseBackoff
	}
	return &Dispatcher{
		jobs:   jobs,
		config: cfg,
		logger: logger,
	}
}

// Notify builds jobs for events and saves them in one batch. Save errors are returned.
func (d *Dispatcher) Notify(ctx context.Context, events ...shared.DomainEvent) error {
	jobs := make([]*notification.EmailJob, 0, len(events))
	for _, event := range events {
		job, err := d.jobFor(event)
		if err != nil {
			return fmt.Errorf("build email for %s: %w", event.EventType(), err)
		}
		if job == nil {
			continue
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		return nil
	}

	if err := d.jobs.Enqueue(ctx, jobs...); err != nil {
		return fmt.Errorf("enqueue email jobs: %w", err)
	}
	for _, job := range jobs {
		d.logger.Debug("Email job queued",
			zap.String("job_id", job.ID.String()),
			zap.String("template", job.Template))
	}
	return nil
}

func (d *Dispatcher) jobFor(event shared.DomainEvent) (*notification.EmailJob, error) {
	switch e := event.(type) {
	case *identity.UserRegisteredEvent:
		return d.newJob(e.Email, SubjectVerifyEmail, notification.TemplateVerifyEmail, map[string]any{
			"name": d.displayName(e.Name, e.Email),
			"otp":  e.OTP,
		})
	case *identity.VerificationCodeReissuedEvent:
		return d.newJob(e.Email, SubjectVerifyEmail, notification.TemplateVerifyEmail, map[string]any{
			"name": d.displayName(e.Name, e.Email),
			"otp":  e.OTP,
		})
	case *identity.PasswordResetRequestedEvent:
		return d.newJob(e.Email, SubjectResetPassword, notification.TemplateResetPassword, map[string]any{
			"name":       d.displayName(e.Name, e.Email),
			"reset_url":  e.ResetURL,
			"expires_at": e.ExpiresAt.UTC().Format(time.RFC1123),
		})
	default:
		return nil, nil
	}
}

func (d *Dispatcher) newJob(to, subject, template string, data map[string]any) (*notification.EmailJob, error) {
	job, err := notification.NewEmailJob(to, subject, template, data)
	if err != nil {
		return nil, err
	}
	job.MaxAttempts = d.config.MaxAttempts
	job.BaseBackoff = d.config.BaseBackoff
	return job, nil
}

// displayName greets by name, falling back to the local part of the address
func (d *Dispatcher) displayName(name, email string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	// Casers hold state and cannot be shared between goroutines
	return cases.Title(language.Und).String(name)
}

// QueueStats summarizes the email queue
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// Stats returns job counts per status
func (d *Dispatcher) Stats(ctx context.Context) (*QueueStats, error) {
	counts, err := d.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count email jobs: %w", err)
	}
	stats := &QueueStats{
		Pending:    counts[notification.JobStatusPending],
		Processing: counts[notification.JobStatusProcessing],
		Sent:       counts[notification.JobStatusSent],
		Failed:     counts[notification.JobStatusFailed],
		Dead:       counts[notification.JobStatusDead],
	}
	stats.Total = stats.Pending + stats.Processing + stats.Sent + stats.Failed + stats.Dead
	return stats, nil
}
