package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-rolepricing/internal/app"
	"github.com/noah-isme/toko-rolepricing/internal/config"
	"github.com/noah-isme/toko-rolepricing/internal/obs"
	"github.com/noah-isme/toko-rolepricing/internal/order"
)

const metricsNamespace = "rolepricing"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Tracing.Enabled,
		ServiceName:   cfg.Tracing.ServiceName + "-worker",
		Endpoint:      cfg.Tracing.Endpoint,
		Insecure:      cfg.Tracing.Insecure,
		SamplingRatio: cfg.Tracing.SampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init tracer")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	pool, rdb, err := app.Connect(ctx, cfg, "toko-rolepricing-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect backends")
	}
	defer pool.Close()
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri for tasks")
	}
	// The worker never schedules reconciliation itself.
	deps, err := app.New(cfg, logger, pool, rdb, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire dependencies")
	}

	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	taskMetrics := obs.NewTaskMetrics(metricsNamespace, nil)
	if cfg.Worker.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.Worker.MetricsAddr, logger)
	}

	if err := deps.Invalidations.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("eligibility invalidation listener not started, cache expires on ttl")
	}
	deps.Arbiter.Sync(ctx)
	go deps.Arbiter.Watch(ctx, cfg.Hooks.SyncInterval)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{cfg.Worker.Queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			if retried >= maxRetry {
				logger.Error().Err(err).Str("task_type", t.Type()).Msg("task exhausted retries")
			}
		}),
		ShutdownTimeout: 10 * time.Second,
	})

	mux := asynq.NewServeMux()
	mux.Use(obs.TaskObs{Logger: logger, Metrics: taskMetrics}.Middleware)
	mux.Handle(order.TypeReconcile, deps.Reconciler)

	logger.Info().Int("concurrency", cfg.Worker.Concurrency).Str("queue", cfg.Worker.Queue).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
