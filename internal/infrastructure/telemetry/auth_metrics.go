package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys used by the service metrics
var (
	AttrOperation = attribute.Key("auth.operation")
	AttrOutcome   = attribute.Key("outcome")
	AttrTemplate  = attribute.Key("email.template")
	AttrStatus    = attribute.Key("email.status")
)

// ServiceMetrics counts auth outcomes and email deliveries.
// It satisfies the metric hooks of the auth service and the queue processor.
type ServiceMetrics struct {
	authOutcomes  metric.Int64Counter
	emailOutcomes metric.Int64Counter
}

// NewServiceMetrics creates the counters on meter
func NewServiceMetrics(meter metric.Meter) (*ServiceMetrics, error) {
	auth, err := meter.Int64Counter("auth.operations",
		metric.WithDescription("Auth operations by outcome"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter auth.operations: %w", err)
	}
	email, err := meter.Int64Counter("email.deliveries",
		metric.WithDescription("Email delivery attempts by outcome"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter email.deliveries: %w", err)
	}
	return &ServiceMetrics{authOutcomes: auth, emailOutcomes: email}, nil
}

// RecordAuthOutcome counts one auth operation
func (m *ServiceMetrics) RecordAuthOutcome(ctx context.Context, operation, outcome string) {
	m.authOutcomes.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(operation), AttrOutcome.String(outcome)))
}

// RecordEmailOutcome counts one delivery attempt
func (m *ServiceMetrics) RecordEmailOutcome(ctx context.Context, template, outcome string) {
	m.emailOutcomes.Add(ctx, 1, metric.WithAttributes(AttrTemplate.String(template), AttrOutcome.String(outcome)))
}

// QueueCounter reports the number of email jobs per status
type QueueCounter func(ctx context.Context) (map[string]int64, error)

// RegisterQueueDepth observes the email queue size per status on every collection
func RegisterQueueDepth(meter metric.Meter, count QueueCounter) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge("email.queue.jobs",
		metric.WithDescription("Email jobs per status"),
		metric.WithUnit("{job}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge email.queue.jobs: %w", err)
	}
	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		counts, err := count(ctx)
		if err != nil {
			return err
		}
		for status, n := range counts {
			o.ObserveInt64(gauge, n, metric.WithAttributes(AttrStatus.String(status)))
		}
		return nil
	}, gauge)
}
