package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/api/rest"
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/lifecycle"
	"github.com/davidleathers/secops-incident-engine/internal/domain/permission"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/auth"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/cache"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/config"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/database"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/events"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/repository"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/secops-incident-engine/internal/metrics"
	"github.com/davidleathers/secops-incident-engine/internal/service/access"
	"github.com/davidleathers/secops-incident-engine/internal/service/audit"
	"github.com/davidleathers/secops-incident-engine/internal/service/incidents"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	provider, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    "secops-incident-engine",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.ExportTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewRegistry(reg)

	db, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	reg.MustRegister(database.NewPoolCollector(db))

	redisClient, err := cache.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	repos, err := repository.NewRepositories(db, logger)
	if err != nil {
		return err
	}
	viewAs, err := cache.NewViewAsStore(redisClient, cfg.Redis.ViewAsTTL, logger)
	if err != nil {
		return err
	}

	sinks := []audit.Sink{audit.NewLogSink(logger)}
	if cfg.Audit.PostgresEnabled {
		sinks = append(sinks, repos.AuditLog)
	}
	if cfg.Audit.StreamEnabled {
		stream, err := events.NewRedisStreamSink(redisClient, cfg.Audit.StreamKeyPrefix, cfg.Audit.StreamMaxLen, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, events.NewBreakerSink(stream, 5, 30*time.Second, logger))
	}
	emitter := audit.NewEmitter(audit.DefaultConfig(), logger, m, sinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := emitter.Close(closeCtx); err != nil {
			logger.Warn("audit emitter did not drain", zap.Error(err))
		}
	}()

	matrices := permission.Default()
	engine, err := incidents.NewEngine(
		repos.Incidents,
		lifecycle.NewMachine(matrices, incident.RealClock{}),
		emitter,
		incidents.Options{
			MaxConflictRetries: cfg.Lifecycle.MaxConflictRetries,
			RequestTimeout:     cfg.Lifecycle.RequestTimeout,
		},
		logger,
		m,
	)
	if err != nil {
		return err
	}
	resolver := access.NewResolver(repos.Roles, viewAs, logger, m)

	tokens, err := auth.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
	if err != nil {
		return err
	}

	var limiter rest.Limiter = rest.NewRateLimiter(cfg.Security.RateLimit.RequestsPerSecond, cfg.Security.RateLimit.BurstSize)
	if cfg.Security.RateLimit.Distributed {
		if limiter, err = cache.NewSlidingWindowLimiter(redisClient, cfg.Security.RateLimit.RequestsPerSecond, time.Second, logger); err != nil {
			return err
		}
	}

	var contract *rest.ContractValidator
	if cfg.Server.ValidateRequests {
		if contract, err = rest.NewContractValidator(); err != nil {
			return err
		}
	}

	base := rest.NewBaseHandler(cfg.Version, logger)
	router := rest.NewRouter(rest.RouterConfig{
		Handler:     rest.NewHandler(base, engine, resolver, repos.AuditLog, matrices),
		Auth:        rest.NewAuthMiddleware(tokens, base),
		RateLimiter: limiter,
		Metrics:     m,
		Gatherer:    reg,
		Contract:    contract,
		HealthChecks: []rest.HealthChecker{
			rest.CheckFunc{Dependency: "postgres", Fn: db.Ping},
			rest.CheckFunc{Dependency: "redis", Fn: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		Logger: logger,
	})

	return rest.NewServer(cfg.Server, router, logger).Run(ctx)
}
