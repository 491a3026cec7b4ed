// Package app builds the object graph shared by the API and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-rolepricing/internal/auth"
	"github.com/noah-isme/toko-rolepricing/internal/cache"
	"github.com/noah-isme/toko-rolepricing/internal/cart"
	"github.com/noah-isme/toko-rolepricing/internal/catalog"
	"github.com/noah-isme/toko-rolepricing/internal/checkout"
	"github.com/noah-isme/toko-rolepricing/internal/config"
	"github.com/noah-isme/toko-rolepricing/internal/events"
	"github.com/noah-isme/toko-rolepricing/internal/hooks"
	"github.com/noah-isme/toko-rolepricing/internal/interop"
	"github.com/noah-isme/toko-rolepricing/internal/lock"
	"github.com/noah-isme/toko-rolepricing/internal/obs"
	"github.com/noah-isme/toko-rolepricing/internal/order"
	"github.com/noah-isme/toko-rolepricing/internal/pricing"
	"github.com/noah-isme/toko-rolepricing/internal/repo"
	"github.com/noah-isme/toko-rolepricing/internal/roles"
	"github.com/noah-isme/toko-rolepricing/internal/tax"
	"github.com/noah-isme/toko-rolepricing/internal/wholesale"
)

// Owner tags our handlers on shared hook points.
const Owner = "rolepricing"

// Dependencies enumerates the services shared across modules.
type Dependencies struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Validator *validator.Validate
	Tasks     *asynq.Client

	Registry      *roles.Registry
	Products      *catalog.CachedReader
	Chains        catalog.Chains
	CartChain     *hooks.Chain[*cart.Cart]
	Layer         *interop.Layer
	// Invalidations broadcasts eligibility cache drops to every process.
	Invalidations *interop.Invalidations
	Arbiter       *interop.Arbiter
	Gate          *interop.Gate
	Quoter        *pricing.Quoter
	Wholesale     *wholesale.Extension
	Events        *events.Bus
	Tax           tax.Rates
	Verifier      *auth.Verifier

	Catalog    *catalog.Service
	Carts      *cart.Service
	Orders     *order.Service
	Reconciler *order.Reconciler
	Checkout   *checkout.Service
}

// Connect opens the PostgreSQL pool and the Redis client, instrumenting both for tracing.
func Connect(ctx context.Context, cfg *config.Config, appName string) (*pgxpool.Pool, *redis.Client, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("instrument redis tracing: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return pool, rdb, nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(databaseURL string) error {
	m, err := repo.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// New wires every component on top of an open pool and Redis client. tasks may be nil
// when reconciliation should not be scheduled, e.g. in tests.
func New(cfg *config.Config, logger zerolog.Logger, db *pgxpool.Pool, rdb *redis.Client, tasks *asynq.Client) (*Dependencies, error) {
	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Validator: roles.NewValidator(),
		Tasks:     tasks,
		Verifier:  verifier,
		Chains:    catalog.NewChains(),
		CartChain: hooks.NewChain[*cart.Cart](hooks.PointCartTotals),
		Tax: tax.Rates{
			DefaultBPS: cfg.Tax.DefaultBPS,
			Classes:    cfg.Tax.ClassBPS,
			Inclusive:  cfg.Tax.PricesIncludeTax,
		},
	}

	d.Layer = &interop.Layer{
		TrueWholesaleRoles: cfg.Wholesale.TrueRoles,
		Cache:              cache.NewTTL[interop.Eligibility]("eligibility", cfg.Pricing.EligibilityCacheSize, cfg.Pricing.EligibilityCacheTTL),
		Logger:             obs.Component(logger, "interop"),
	}
	d.Invalidations = &interop.Invalidations{
		Client:  rdb,
		Channel: cfg.Pricing.InvalidationChannel,
		Layer:   d.Layer,
		Logger:  obs.Component(logger, "invalidation"),
	}
	d.Registry = &roles.Registry{
		Store:           roles.NewRedisStore(rdb, cfg.Pricing.SettingsKey),
		PlatformRoles:   cfg.Pricing.PlatformRoles,
		ShippingMethods: cfg.Pricing.ShippingMethods,
		Validate:        d.Validator,
		OnChange:        d.Invalidations.Purge,
		Logger:          obs.Component(logger, "roles"),
	}
	d.Layer.Registry = d.Registry

	d.Products = &catalog.CachedReader{
		Source: repo.CatalogRepo{DB: db},
		Cache:  catalog.NewCache(rdb, cfg.Pricing.CatalogCacheTTL),
		Logger: obs.Component(logger, "catalog"),
	}
	d.Quoter = &pricing.Quoter{
		Resolver: &pricing.Resolver{Rules: d.Registry, Tree: d.Products},
		Products: d.Products,
		Logger:   obs.Component(logger, "pricing"),
	}
	d.Gate = &interop.Gate{Layer: d.Layer, Quoter: d.Quoter}

	d.Events = &events.Bus{
		Store:     repo.EventsRepo{DB: db},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: obs.Component(logger, "events")}},
	}

	var enqueuer order.Enqueuer
	if tasks != nil {
		enqueuer = order.AsynqEnqueuer{Client: tasks, Queue: cfg.Worker.Queue}
	}
	orders := repo.OrdersRepo{DB: db}

	d.Catalog = &catalog.Service{Reader: d.Products, Chains: d.Chains}
	catalog.DiscountFilter{Discounts: d.Gate}.Register(d.Chains, Owner, cfg.Hooks.DefaultPriority)

	d.Carts = &cart.Service{
		Store:            cart.NewRedisStore(rdb),
		Products:         d.Products,
		Discounts:        d.Gate,
		Chain:            d.CartChain,
		Tax:              d.Tax,
		PricesIncludeTax: cfg.Tax.PricesIncludeTax,
		Locker:           &lock.Locker{R: rdb},
		LockTTL:          5 * time.Second,
		Logger:           obs.Component(logger, "cart"),
	}
	d.Carts.RegisterDiscounts(Owner, cfg.Hooks.DefaultPriority)

	d.Orders = &order.Service{
		Orders:    orders,
		Events:    d.Events,
		Reconcile: enqueuer,
		Logger:    obs.Component(logger, "orders"),
	}
	d.Reconciler = &order.Reconciler{
		Orders:           orders,
		Users:            repo.UsersRepo{DB: db},
		Eligibility:      d.Layer,
		Quoter:           d.Quoter,
		Tax:              d.Tax,
		PricesIncludeTax: cfg.Tax.PricesIncludeTax,
		Events:           d.Events,
		Tolerance:        cfg.Pricing.ReconcileTolerance,
		Logger:           obs.Component(logger, "reconcile"),
	}
	d.Checkout = &checkout.Service{
		Carts:            d.Carts,
		Orders:           orders,
		Tax:              d.Tax,
		PricesIncludeTax: cfg.Tax.PricesIncludeTax,
		Events:           d.Events,
		Reconcile:        enqueuer,
		Logger:           obs.Component(logger, "checkout"),
	}

	if cfg.Wholesale.ExtensionActive {
		d.Wholesale = &wholesale.Extension{
			Prices:   repo.WholesalePrices{DB: db},
			Roles:    cfg.Wholesale.ExcludedRoles,
			Priority: cfg.Wholesale.Priority,
			Logger:   obs.Component(logger, "wholesale"),
		}
		d.Wholesale.Register(d.Chains, d.CartChain)
	}
	d.Layer.Detector = d.detector()

	d.Arbiter = &interop.Arbiter{
		Layer: d.Layer,
		Bindings: []interop.Binding{
			{Point: hooks.PointCatalogPrice, Chain: d.Chains.Price, HandlerID: catalog.HandlerPrice},
			{Point: hooks.PointVariationPrice, Chain: d.Chains.Variation, HandlerID: catalog.HandlerVariation},
			{Point: hooks.PointVariablePrice, Chain: d.Chains.Variable, HandlerID: catalog.HandlerVariable},
			{Point: hooks.PointCartTotals, Chain: d.CartChain, HandlerID: cart.HandlerDiscounts},
		},
		Buffer:           cfg.Hooks.PriorityBuffer,
		DefaultPriority:  cfg.Hooks.DefaultPriority,
		FallbackPriority: cfg.Hooks.FallbackPriority,
		Logger:           obs.Component(logger, "arbiter"),
	}
	return d, nil
}

func (d *Dependencies) detector() interop.Detector {
	cfg := d.Config.Wholesale
	if cfg.Detection == "static" {
		priorities := make(map[hooks.Point]int, len(cfg.Priorities))
		for point, p := range cfg.Priorities {
			priorities[hooks.Point(point)] = p
		}
		return interop.StaticDetector{Active: cfg.ExtensionActive, Priorities: priorities, Roles: cfg.ExcludedRoles}
	}
	det := interop.HookDetector{
		Chains: map[hooks.Point]hooks.Ordered{
			hooks.PointCatalogPrice:   d.Chains.Price,
			hooks.PointVariationPrice: d.Chains.Variation,
			hooks.PointVariablePrice:  d.Chains.Variable,
			hooks.PointCartTotals:     d.CartChain,
		},
	}
	if d.Wholesale != nil {
		det.Taxonomy = d.Wholesale
	}
	return det
}
