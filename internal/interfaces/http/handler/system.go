package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/application/notification"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// HealthCheck probes one dependency; a nil error means healthy
type HealthCheck func(ctx context.Context) error

// QueueStatsProvider reports email queue depth per status
type QueueStatsProvider interface {
	Stats(ctx context.Context) (*notification.QueueStats, error)
}

// SystemHandler serves liveness, readiness and build information
type SystemHandler struct {
	BaseHandler
	name       string
	startTime  time.Time
	checks     map[string]HealthCheck
	queueStats QueueStatsProvider
	timeout    time.Duration
}

// SystemHandlerOption configures a SystemHandler
type SystemHandlerOption func(*SystemHandler)

// WithQueueStats adds email queue counts to GET /system/info
func WithQueueStats(p QueueStatsProvider) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.queueStats = p
	}
}

// NewSystemHandler creates a new SystemHandler. Each named check is run by Health.
func NewSystemHandler(name string, checks map[string]HealthCheck, opts ...SystemHandlerOption) *SystemHandler {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	h := &SystemHandler{
		name:      name,
		startTime: time.Now(),
		checks:    checks,
		timeout:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string                   `json:"name"`
	Version   string                   `json:"version"`
	GoVersion string                   `json:"go_version"`
	Uptime    string                   `json:"uptime"`
	Queue     *notification.QueueStats `json:"queue,omitempty"`
}

// GetSystemInfo handles GET /system/info. Queue counts are omitted when
// the store cannot be read.
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	resp := SystemInfoResponse{
		Name:      h.name,
		Version:   telemetry.ServiceVersion,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.queueStats != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()
		stats, err := h.queueStats.Stats(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("Failed to read email queue stats", zap.Error(err))
		} else {
			resp.Queue = stats
		}
	}
	h.Success(c, resp)
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping handles GET /system/ping
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthResponse lists the state of every dependency
type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// Health handles GET /health. Any failing dependency makes it 503.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok", Dependencies: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			logger.FromContext(ctx).Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Dependencies[name] = "down"
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[name] = "up"
	}

	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp, Error: &dto.ErrorInfo{
			Code:    dto.ErrCodeUnavailable,
			Message: "One or more dependencies are unavailable",
		}})
		return
	}
	h.Success(c, resp)
}
