package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost/rolepricing",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "rolepricing:settings", cfg.Pricing.SettingsKey)
	require.Equal(t, 5*time.Minute, cfg.Pricing.EligibilityCacheTTL)
	require.Equal(t, 10000, cfg.Pricing.EligibilityCacheSize)
	require.Equal(t, "0.01", cfg.Pricing.ReconcileTolerance.String())
	require.Equal(t, "120-M", cfg.Pricing.QuoteRateLimit)
	require.Contains(t, cfg.Pricing.PlatformRoles, "administrator")
	require.Equal(t, 5, cfg.Hooks.PriorityBuffer)
	require.Equal(t, 10, cfg.Hooks.DefaultPriority)
	require.Equal(t, 15, cfg.Hooks.FallbackPriority)
	require.Equal(t, "hooks", cfg.Wholesale.Detection)
	require.False(t, cfg.Wholesale.ExtensionActive)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = ":9000"
	env["WHOLESALE_EXTENSION_ACTIVE"] = "true"
	env["WHOLESALE_DETECTION"] = "Static"
	env["WHOLESALE_PRIORITIES"] = "catalog.price=20, cart.before_totals=30"
	env["WHOLESALE_TRUE_ROLES"] = "dealer, wholesale_customer"
	env["TAX_RATE_BPS"] = "1100"
	env["TAX_CLASS_RATES"] = "reduced-rate=500,zero-rate=0"
	env["RECONCILE_TOLERANCE"] = "0.05"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddr())
	require.True(t, cfg.Wholesale.ExtensionActive)
	require.Equal(t, "static", cfg.Wholesale.Detection)
	require.Equal(t, map[string]int{"catalog.price": 20, "cart.before_totals": 30}, cfg.Wholesale.Priorities)
	require.Equal(t, []string{"dealer", "wholesale_customer"}, cfg.Wholesale.TrueRoles)
	require.Equal(t, 1100, cfg.Tax.DefaultBPS)
	require.Equal(t, 500, cfg.Tax.ClassBPS["reduced-rate"])
	require.Equal(t, "0.05", cfg.Pricing.ReconcileTolerance.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing database": {"DATABASE_URL": ""},
		"missing redis":    {"REDIS_URL": ""},
		"missing secret":   {"JWT_SECRET": ""},
		"bad detection":    {"WHOLESALE_DETECTION": "magic"},
		"bad pairs":        {"WHOLESALE_PRIORITIES": "catalog.price"},
		"bad tolerance":    {"RECONCILE_TOLERANCE": "abc"},
		"negative tol":     {"RECONCILE_TOLERANCE": "-1"},
	}
	for name, override := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range override {
				env[k] = v
			}
			_, err := LoadForTests(env)
			require.Error(t, err)
		})
	}
}
