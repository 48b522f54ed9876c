package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	identityapp "github.com/storefront/backend/internal/application/identity"
	notificationapp "github.com/storefront/backend/internal/application/notification"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/mailer"
	"github.com/storefront/backend/internal/infrastructure/migration"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/queue"
	"github.com/storefront/backend/internal/infrastructure/ratelimit"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
	"github.com/storefront/backend/migrations"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app owns every long-lived resource of the server process
type app struct {
	logger     *zap.Logger
	telemetry  *telemetry.Telemetry
	db         *persistence.Database
	redis      redis.UniversalClient
	processor  *queue.EmailJobProcessor
	queueGauge metric.Registration
	server     *http.Server
	queueOn    bool
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{queueOn: cfg.Queue.Enabled}

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry = tel
	if tel.Logs.IsEnabled() {
		otelCore := tel.Logs.NewZapCore(cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))
		log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, otelCore)
		}))
	}
	a.logger = log

	if cfg.Database.AutoMigrate {
		if err := migration.UpFromDSN(cfg.Database.DSN(), migrations.FS, log); err != nil {
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithBindValues(cfg.App.IsDevelopment() && cfg.Log.Level == "debug"))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := telemetry.RegisterDBTracing(db.DB, tel.DB, log); err != nil {
		return nil, fmt.Errorf("db tracing: %w", err)
	}
	log.Info("Database connected")

	var blacklist auth.TokenBlacklist = auth.NewInMemoryTokenBlacklist()
	var authLimiter ratelimit.Limiter
	if cfg.HTTP.AuthRateLimitEnabled {
		authLimiter = ratelimit.NewMemoryLimiter(cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow)
	}
	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		blacklist = auth.NewRedisTokenBlacklist(a.redis)
		if cfg.HTTP.AuthRateLimitEnabled {
			authLimiter = ratelimit.NewSlidingWindowLimiter(a.redis,
				cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow, "ratelimit:auth:")
		}
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	userRepo := persistence.NewGormUserRepository(db.DB)
	refreshRepo := persistence.NewGormRefreshTokenRepository(db.DB)
	jobRepo := persistence.NewGormEmailJobRepository(db.DB)

	meter := tel.Meter.Meter(telemetry.TracerName)
	serviceMetrics, err := telemetry.NewServiceMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.queueGauge, err = telemetry.RegisterQueueDepth(meter, func(ctx context.Context) (map[string]int64, error) {
		counts, err := jobRepo.CountByStatus(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]int64, len(counts))
		for status, n := range counts {
			out[string(status)] = n
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue gauge: %w", err)
	}

	mail, err := mailer.NewFromConfig(ctx, cfg.Mail, log)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	dispatcher := notificationapp.NewDispatcher(jobRepo, notificationapp.DispatcherConfig{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseBackoff: cfg.Queue.BaseBackoff,
	}, log)
	a.processor = queue.NewEmailJobProcessor(jobRepo, mail, queue.ProcessorConfigFrom(cfg.Queue), log,
		queue.WithTokenPurger(refreshRepo),
		queue.WithMetrics(serviceMetrics),
	)

	otp, err := auth.NewOTPGenerator()
	if err != nil {
		return nil, fmt.Errorf("otp generator: %w", err)
	}
	issuer := auth.NewTokenIssuer(cfg.JWT)
	authService := identityapp.NewAuthService(
		userRepo, refreshRepo, issuer, dispatcher, otp,
		identityapp.AuthServiceConfigFrom(cfg), log,
		identityapp.WithTokenBlacklist(blacklist),
		identityapp.WithAuthMetrics(serviceMetrics),
	)

	engine, err := a.newEngine(cfg, meter, authService, dispatcher, issuer, blacklist, authLimiter)
	if err != nil {
		return nil, err
	}
	a.server = &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}
	return a, nil
}

func (a *app) newEngine(
	cfg *config.Config,
	meter metric.Meter,
	authService handler.AuthUseCases,
	queueStats handler.QueueStatsProvider,
	issuer *auth.TokenIssuer,
	blacklist auth.TokenBlacklist,
	limiter ratelimit.Limiter,
) (*gin.Engine, error) {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         a.logger,
		ServiceName:    cfg.Telemetry.ServiceName,
		Production:     cfg.App.IsProduction(),
		Tracing:        a.telemetry.Tracer.IsEnabled(),
		Meter:          meter,
		CORS:           cors,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return nil, fmt.Errorf("http engine: %w", err)
	}

	var limit gin.HandlerFunc
	if limiter != nil {
		limit = middleware.RateLimit(limiter, a.logger)
	}
	requireAuth := middleware.JWTAuth(middleware.JWTConfig{
		Validator: issuer,
		Blacklist: blacklist,
		Logger:    a.logger,
	})

	checks := map[string]handler.HealthCheck{"database": a.db.Ping}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}

	authHandler := handler.NewAuthHandler(authService, handler.NewRefreshCookie(cfg.Cookie), issuer, cfg.App.IsDevelopment())
	router.Mount(engine,
		router.AuthRoutes(authHandler, requireAuth, limit),
		handler.NewSystemHandler(cfg.App.Name, checks, handler.WithQueueStats(queueStats)),
	)
	return engine, nil
}

func (a *app) start(ctx context.Context) error {
	if !a.queueOn {
		a.logger.Info("Email queue consumer disabled")
		return nil
	}
	return a.processor.Start(ctx)
}

// shutdown stops intake first, then workers, then flushes telemetry and
// closes the stores
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if a.queueOn {
		if err := a.processor.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("email processor: %w", err))
		}
	}
	if a.queueGauge != nil {
		errs = append(errs, a.queueGauge.Unregister())
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	return errors.Join(errs...)
}
