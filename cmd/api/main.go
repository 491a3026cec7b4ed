package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"

	"github.com/noah-isme/toko-rolepricing/internal/app"
	"github.com/noah-isme/toko-rolepricing/internal/auth"
	"github.com/noah-isme/toko-rolepricing/internal/cart"
	"github.com/noah-isme/toko-rolepricing/internal/catalog"
	"github.com/noah-isme/toko-rolepricing/internal/checkout"
	"github.com/noah-isme/toko-rolepricing/internal/config"
	"github.com/noah-isme/toko-rolepricing/internal/health"
	"github.com/noah-isme/toko-rolepricing/internal/interop"
	"github.com/noah-isme/toko-rolepricing/internal/obs"
	"github.com/noah-isme/toko-rolepricing/internal/order"
	"github.com/noah-isme/toko-rolepricing/internal/ratelimit"
	"github.com/noah-isme/toko-rolepricing/internal/roles"
)

const metricsNamespace = "rolepricing"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("service", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Tracing.Enabled,
		ServiceName:   cfg.Tracing.ServiceName,
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
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	if cfg.MigrationsAuto {
		if err := app.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	pool, rdb, err := app.Connect(ctx, cfg, "toko-rolepricing-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect backends")
	}
	defer pool.Close()
	defer rdb.Close()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri for tasks")
	}
	tasks := asynq.NewClient(redisOpt)
	defer tasks.Close()

	deps, err := app.New(cfg, logger, pool, rdb, tasks)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire dependencies")
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(metricsNamespace, nil)
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil, nil)
	}

	store, err := ratelimit.NewRedisStore(rdb, "rolepricing:ratelimit")
	if err != nil {
		logger.Fatal().Err(err).Msg("rate limit store")
	}
	quoteLimiter, err := ratelimit.New(store, cfg.Pricing.QuoteRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("rate limit")
	}

	if err := deps.Invalidations.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("eligibility invalidation listener not started, peers expire on ttl")
	}
	deps.Arbiter.Sync(ctx)
	go deps.Arbiter.Watch(ctx, cfg.Hooks.SyncInterval)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(cfg, deps, logger, httpMetrics, quoteLimiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger, metrics *obs.HTTPMetrics, quoteLimiter *limiter.Limiter) http.Handler {
	authMiddleware := auth.Middleware{Verifier: deps.Verifier, AccessCookie: cfg.AccessCookie}
	catalogHandler := &catalog.Handler{Service: deps.Catalog}
	cartHandler := &cart.Handler{Svc: deps.Carts}
	checkoutHandler := &checkout.Handler{Svc: deps.Checkout}
	orderHandler := &order.AdminHandler{Svc: deps.Orders, Reconciler: deps.Reconciler}
	rolesHandler := &roles.AdminHandler{Registry: deps.Registry}
	interopHandler := &interop.Handler{Layer: deps.Layer, Arbiter: deps.Arbiter, Invalidations: deps.Invalidations}
	quoteLimit := ratelimit.Handler{Limiter: quoteLimiter, Key: ratelimit.ByUserOrIP, Logger: obs.Component(logger, "ratelimit")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(obs.RoutePatternMiddleware)
	if cfg.Tracing.Enabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	healthHandler := health.Handler{
		Checker:      health.Probes{DB: deps.DB, Redis: deps.Redis},
		Interop:      deps.Layer,
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(public chi.Router) {
			public.Use(authMiddleware.Authenticate)
			public.Use(quoteLimit.Middleware)
			public.Get("/products/{id}/price", catalogHandler.Price)
		})

		v.Group(func(protected chi.Router) {
			protected.Use(authMiddleware.RequireAuth)

			protected.Route("/carts/{id}", func(c chi.Router) {
				c.Get("/", cartHandler.Get)
				c.Post("/lines", cartHandler.AddLine)
				c.Post("/calculate", cartHandler.Calculate)
				c.Get("/discounts", cartHandler.Discounts)
				c.Post("/reset-pricing", cartHandler.ResetPricing)
			})
			protected.Post("/checkout", checkoutHandler.Checkout)
			protected.Post("/session/invalidate", interopHandler.InvalidateSession)

			protected.Group(func(admin chi.Router) {
				admin.Use(auth.RequireRole("administrator"))

				admin.Patch("/orders/{id}/status", orderHandler.PatchStatus)
				admin.Post("/orders/{id}/reconcile", orderHandler.Reconcile)

				admin.Get("/roles", rolesHandler.List)
				admin.Get("/roles/{role}", rolesHandler.Get)
				admin.Put("/roles/{role}", rolesHandler.Put)
				admin.Delete("/roles/{role}", rolesHandler.Delete)
				admin.Put("/roles/{role}/categories/{categoryID}", rolesHandler.PutCategory)
				admin.Delete("/roles/{role}/categories/{categoryID}", rolesHandler.DeleteCategory)
				admin.Post("/custom-roles", rolesHandler.CreateCustomRole)
				admin.Delete("/custom-roles/{role}", rolesHandler.DeleteCustomRole)
				admin.Put("/wholesale-roles", rolesHandler.PutWholesaleRoles)

				admin.Get("/interop/status", interopHandler.Status)
				admin.Post("/interop/sync", interopHandler.Sync)
			})
		})
	})
	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
