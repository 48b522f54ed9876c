// Package queue runs the background consumer of the email job queue.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/storefront/backend/internal/domain/notification"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Outcome labels reported to Metrics
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
	OutcomeDead   = "dead"
)

// Sender delivers one email job
type Sender interface {
	Send(ctx context.Context, job *notification.EmailJob) error
}

// ExpiredTokenPurger removes refresh tokens past their expiry
type ExpiredTokenPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Metrics receives delivery outcomes
type Metrics interface {
	RecordEmailOutcome(ctx context.Context, template, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordEmailOutcome(context.Context, string, string) {}

// ProcessorConfig holds configuration for the email job processor
type ProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	SendTimeout      time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultProcessorConfig returns default configuration
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:        20,
		PollInterval:     2 * time.Second,
		SendTimeout:      30 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// ProcessorConfigFrom builds the processor config from application config
func ProcessorConfigFrom(cfg config.QueueConfig) ProcessorConfig {
	out := DefaultProcessorConfig()
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	if cfg.PollInterval > 0 {
		out.PollInterval = cfg.PollInterval
	}
	out.CleanupEnabled = cfg.CleanupEnabled
	if cfg.CleanupRetention > 0 {
		out.CleanupRetention = cfg.CleanupRetention
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = cfg.CleanupInterval
	}
	return out
}

// ProcessorOption configures optional collaborators
type ProcessorOption func(*EmailJobProcessor)

// WithTokenPurger makes the cleanup cycle also purge expired refresh tokens
func WithTokenPurger(p ExpiredTokenPurger) ProcessorOption {
	return func(ep *EmailJobProcessor) { ep.tokens = p }
}

// WithMetrics reports delivery outcomes to m
func WithMetrics(m Metrics) ProcessorOption {
	return func(ep *EmailJobProcessor) {
		if m != nil {
			ep.metrics = m
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) ProcessorOption {
	return func(ep *EmailJobProcessor) { ep.now = now }
}

// EmailJobProcessor claims due jobs and hands them to the sender.
// Delivery is at-least-once.
type EmailJobProcessor struct {
	jobs    notification.JobRepository
	sender  Sender
	tokens  ExpiredTokenPurger
	metrics Metrics
	config  ProcessorConfig
	logger  *zap.Logger
	now     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEmailJobProcessor creates a new processor
func NewEmailJobProcessor(
	jobs notification.JobRepository,
	sender Sender,
	cfg ProcessorConfig,
	logger *zap.Logger,
	opts ...ProcessorOption,
) *EmailJobProcessor {
	p := &EmailJobProcessor{
		jobs:    jobs,
		sender:  sender,
		metrics: noopMetrics{},
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the poll loop and, if enabled, the cleanup loop
func (p *EmailJobProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("Email job processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop stops polling and waits for the batch in flight to finish or ctx to expire
func (p *EmailJobProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Email job processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EmailJobProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch claims one batch of due jobs and delivers it. A claimed batch
// is finished even if ctx is cancelled meanwhile; it returns the number of jobs handled.
func (p *EmailJobProcessor) ProcessBatch(ctx context.Context) int {
	jobs, err := p.jobs.ClaimDue(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("Failed to claim email jobs", zap.Error(err))
		}
		return 0
	}

	workCtx := context.WithoutCancel(ctx)
	for _, job := range jobs {
		p.processJob(workCtx, job)
	}
	return len(jobs)
}

func (p *EmailJobProcessor) processJob(ctx context.Context, job *notification.EmailJob) {
	ctx, span := telemetry.StartServiceSpan(ctx, "email_queue", "Send",
		attribute.String("email.template", job.Template),
		attribute.Int("email.attempt", job.Attempts+1),
	)
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout())
	err := p.sender.Send(sendCtx, job)
	cancel()

	if err != nil {
		telemetry.RecordError(span, err)
		job.MarkFailed(err.Error())
		outcome := OutcomeFailed
		if job.IsDead() {
			outcome = OutcomeDead
			p.logger.Warn("Email job is dead",
				zap.String("job_id", job.ID.String()),
				zap.String("template", job.Template),
				zap.Int("attempts", job.Attempts),
				zap.String("last_error", job.LastError),
			)
		} else {
			p.logger.Error("Failed to send email",
				zap.String("job_id", job.ID.String()),
				zap.String("template", job.Template),
				zap.Int("attempts", job.Attempts),
				zap.Error(err),
			)
		}
		p.metrics.RecordEmailOutcome(ctx, job.Template, outcome)
		if updateErr := p.jobs.Update(ctx, job); updateErr != nil {
			p.logger.Error("Failed to update email job", zap.String("job_id", job.ID.String()), zap.Error(updateErr))
		}
		return
	}

	job.MarkSent()
	p.metrics.RecordEmailOutcome(ctx, job.Template, OutcomeSent)
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Error("Failed to mark email job as sent",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("Email sent",
		zap.String("job_id", job.ID.String()),
		zap.String("template", job.Template),
	)
}

func (p *EmailJobProcessor) sendTimeout() time.Duration {
	if p.config.SendTimeout <= 0 {
		return 30 * time.Second
	}
	return p.config.SendTimeout
}

func (p *EmailJobProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(ctx)
		}
	}
}

// Cleanup removes finished jobs past the retention window and expired refresh tokens
func (p *EmailJobProcessor) Cleanup(ctx context.Context) {
	now := p.now()
	cutoff := now.Add(-p.config.CleanupRetention)
	deleted, err := p.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("Failed to clean up email jobs", zap.Error(err))
	} else if deleted > 0 {
		p.logger.Info("Cleaned up email jobs",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}

	if p.tokens == nil {
		return
	}
	purged, err := p.tokens.DeleteExpired(ctx, now)
	if err != nil {
		p.logger.Error("Failed to purge expired refresh tokens", zap.Error(err))
		return
	}
	if purged > 0 {
		p.logger.Info("Purged expired refresh tokens", zap.Int64("deleted", purged))
	}
}
