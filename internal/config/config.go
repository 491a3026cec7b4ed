package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessCookie       string
	CORSAllowedOrigins []string
	LogFormat          string
	LogLevel           string
	MigrationsAuto     bool
	MetricsEnabled     bool
	PprofEnabled       bool
	PprofUser          string
	PprofPass          string

	Pricing   PricingConfig
	Wholesale WholesaleConfig
	Hooks     HookConfig
	Tax       TaxConfig
	Tracing   TracingConfig
	Worker    WorkerConfig
}

// PricingConfig covers the role registry, caches and reconciliation.
type PricingConfig struct {
	SettingsKey          string
	PlatformRoles        []string
	ShippingMethods      []string
	EligibilityCacheTTL  time.Duration
	EligibilityCacheSize int
	// InvalidationChannel is the Redis pub/sub channel for eligibility invalidations.
	InvalidationChannel  string
	CatalogCacheTTL      time.Duration
	ReconcileTolerance   decimal.Decimal
	QuoteRateLimit       string
}

// WholesaleConfig describes the co-installed wholesale extension.
type WholesaleConfig struct {
	ExtensionActive bool
	// TrueRoles overrides the built-in set of roles that hand pricing to the extension.
	TrueRoles     []string
	ExcludedRoles []string
	// Detection is "hooks" or "static".
	Detection  string
	Priorities map[string]int
	// Priority is where the bundled extension registers its handlers.
	Priority int
}

// HookConfig controls where role pricing sits on shared hook points.
type HookConfig struct {
	PriorityBuffer   int
	DefaultPriority  int
	FallbackPriority int
	SyncInterval     time.Duration
}

// TaxConfig is the basis-point tax table.
type TaxConfig struct {
	DefaultBPS       int
	ClassBPS         map[string]int
	PricesIncludeTax bool
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// WorkerConfig configures the asynq worker.
type WorkerConfig struct {
	Concurrency int
	Queue       string
	// MetricsAddr serves /metrics from the worker when set.
	MetricsAddr string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	tolerance, err := decimal.NewFromString(valueOrDefault(k.String("RECONCILE_TOLERANCE"), "0.01"))
	if err != nil {
		return nil, fmt.Errorf("RECONCILE_TOLERANCE: %w", err)
	}
	priorities, err := parsePairs(k.String("WHOLESALE_PRIORITIES"))
	if err != nil {
		return nil, fmt.Errorf("WHOLESALE_PRIORITIES: %w", err)
	}
	classes, err := parsePairs(k.String("TAX_CLASS_RATES"))
	if err != nil {
		return nil, fmt.Errorf("TAX_CLASS_RATES: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "toko-rolepricing"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "toko-frontend"),
		AccessCookie:       valueOrDefault(k.String("ACCESS_COOKIE"), "access_token"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MigrationsAuto:     parseBool(k.String("MIGRATIONS_AUTO")),
		MetricsEnabled:     k.String("OBS_ENABLE_METRICS") == "" || parseBool(k.String("OBS_ENABLE_METRICS")),
		PprofEnabled:       parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:          k.String("SECURE_PPROF_BASIC_AUTH_USER"),
		PprofPass:          k.String("SECURE_PPROF_BASIC_AUTH_PASS"),
		Pricing: PricingConfig{
			SettingsKey:          valueOrDefault(k.String("SETTINGS_KEY"), "rolepricing:settings"),
			PlatformRoles:        splitOrDefault(k.String("PLATFORM_ROLES"), "customer,subscriber,shop_manager,administrator"),
			ShippingMethods:      splitAndTrim(k.String("SHIPPING_METHODS")),
			EligibilityCacheTTL:  parseDuration(k.String("ELIGIBILITY_CACHE_TTL"), "5m"),
			EligibilityCacheSize: parseInt(k.String("ELIGIBILITY_CACHE_SIZE"), 10000),
			InvalidationChannel:  valueOrDefault(k.String("INVALIDATION_CHANNEL"), "rolepricing:eligibility:invalidate"),
			CatalogCacheTTL:      parseDuration(k.String("CATALOG_CACHE_TTL"), "1m"),
			ReconcileTolerance:   tolerance,
			QuoteRateLimit:       valueOrDefault(k.String("QUOTE_RATE_LIMIT"), "120-M"),
		},
		Wholesale: WholesaleConfig{
			ExtensionActive: parseBool(k.String("WHOLESALE_EXTENSION_ACTIVE")),
			TrueRoles:       splitAndTrim(k.String("WHOLESALE_TRUE_ROLES")),
			ExcludedRoles:   splitAndTrim(k.String("WHOLESALE_EXCLUDED_ROLES")),
			Detection:       strings.ToLower(valueOrDefault(k.String("WHOLESALE_DETECTION"), "hooks")),
			Priorities:      priorities,
			Priority:        parseInt(k.String("WHOLESALE_PRIORITY"), 10),
		},
		Hooks: HookConfig{
			PriorityBuffer:   parseInt(k.String("HOOK_PRIORITY_BUFFER"), 5),
			DefaultPriority:  parseInt(k.String("HOOK_DEFAULT_PRIORITY"), 10),
			FallbackPriority: parseInt(k.String("HOOK_FALLBACK_PRIORITY"), 15),
			SyncInterval:     parseDuration(k.String("INTEROP_SYNC_INTERVAL"), "1m"),
		},
		Tax: TaxConfig{
			DefaultBPS:       parseInt(k.String("TAX_RATE_BPS"), 0),
			ClassBPS:         classes,
			PricesIncludeTax: parseBool(k.String("PRICES_INCLUDE_TAX")),
		},
		Tracing: TracingConfig{
			Enabled:     parseBool(k.String("OTEL_ENABLED")),
			Endpoint:    k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:    parseBool(k.String("OTEL_EXPORTER_OTLP_INSECURE")),
			ServiceName: valueOrDefault(k.String("OTEL_SERVICE_NAME"), "toko-rolepricing"),
			SampleRatio: parseFloat(k.String("OTEL_TRACES_SAMPLER_ARG"), 1),
		},
		Worker: WorkerConfig{
			Concurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
			Queue:       valueOrDefault(k.String("WORKER_QUEUE"), "default"),
			MetricsAddr: k.String("WORKER_METRICS_ADDR"),
		},
	}

	switch cfg.Wholesale.Detection {
	case "hooks", "static":
	default:
		return nil, fmt.Errorf("WHOLESALE_DETECTION must be hooks or static, got %q", cfg.Wholesale.Detection)
	}
	if cfg.Pricing.ReconcileTolerance.IsNegative() {
		return nil, errors.New("RECONCILE_TOLERANCE must not be negative")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func splitOrDefault(value, fallback string) []string {
	if out := splitAndTrim(value); len(out) > 0 {
		return out
	}
	return splitAndTrim(fallback)
}

// parsePairs reads "key=int" pairs separated by commas.
func parsePairs(value string) (map[string]int, error) {
	parts := splitAndTrim(value)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(parts))
	for _, part := range parts {
		key, raw, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed pair %q", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("pair %q: %w", part, err)
		}
		out[key] = n
	}
	return out, nil
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
