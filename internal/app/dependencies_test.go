package app

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/config"
	"github.com/noah-isme/toko-rolepricing/internal/interop"
)

func newDeps(t *testing.T, env map[string]string) *Dependencies {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	base := map[string]string{
		"DATABASE_URL": "postgres://localhost/rolepricing",
		"REDIS_URL":    "redis://" + mr.Addr(),
		"JWT_SECRET":   "secret",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadForTests(base)
	require.NoError(t, err)

	deps, err := New(cfg, zerolog.Nop(), nil, rdb, nil)
	require.NoError(t, err)
	return deps
}

func TestNewWithoutExtensionUsesDefaultOrdering(t *testing.T) {
	deps := newDeps(t, nil)
	require.Nil(t, deps.Wholesale)

	placements := deps.Arbiter.Sync(context.Background())
	require.Len(t, placements, 4)
	for _, p := range placements {
		require.Equal(t, interop.ModeDefault, p.Mode)
		require.Equal(t, 10, p.Priority)
	}
	require.False(t, deps.Layer.ExtensionActive(context.Background()))
}

func TestNewPlacesAfterBundledExtension(t *testing.T) {
	deps := newDeps(t, map[string]string{
		"WHOLESALE_EXTENSION_ACTIVE": "true",
		"WHOLESALE_PRIORITY":         "20",
		"WHOLESALE_EXCLUDED_ROLES":   "dealer",
	})
	require.NotNil(t, deps.Wholesale)

	placements := deps.Arbiter.Sync(context.Background())
	require.Len(t, placements, 4)
	for _, p := range placements {
		require.Equal(t, interop.ModeDetected, p.Mode)
		require.Equal(t, 25, p.Priority)
		require.True(t, p.Moved)
	}
	det := deps.Layer.Detection(context.Background())
	require.True(t, det.Active)
	require.Equal(t, []string{"dealer"}, det.Roles)
}

func TestNewStaticDetection(t *testing.T) {
	deps := newDeps(t, map[string]string{
		"WHOLESALE_DETECTION":        "static",
		"WHOLESALE_EXTENSION_ACTIVE": "true",
		"WHOLESALE_PRIORITIES":       "catalog.price=30",
		"WHOLESALE_EXCLUDED_ROLES":   "dealer",
	})

	byPoint := map[string]interop.Placement{}
	for _, p := range deps.Arbiter.Sync(context.Background()) {
		byPoint[string(p.Point)] = p
	}
	require.Equal(t, 35, byPoint["catalog.price"].Priority)
	require.Equal(t, interop.ModeDetected, byPoint["catalog.price"].Mode)
	require.Equal(t, 15, byPoint["cart.before_totals"].Priority)
	require.Equal(t, interop.ModeFallback, byPoint["cart.before_totals"].Mode)
}

func TestNewRequiresSecret(t *testing.T) {
	cfg := &config.Config{}
	_, err := New(cfg, zerolog.Nop(), nil, nil, nil)
	require.Error(t, err)
}
