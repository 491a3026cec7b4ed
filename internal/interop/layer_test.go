package interop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/cache"
	"github.com/noah-isme/toko-rolepricing/internal/common"
)

type stubRegistry struct {
	enabled   []string
	wholesale []string
	err       error
	calls     int
}

func (s *stubRegistry) EnabledRoles(context.Context) ([]string, error) {
	s.calls++
	return s.enabled, s.err
}

func (s *stubRegistry) WholesaleRoles(context.Context) ([]string, error) {
	return s.wholesale, s.err
}

type flakyDetector struct {
	det Detection
	err error
}

func (f *flakyDetector) Detect(context.Context) (Detection, error) { return f.det, f.err }

func newLayer(active bool, reg *stubRegistry) *Layer {
	return &Layer{
		Detector: StaticDetector{Active: active},
		Registry: reg,
		Cache:    cache.NewTTL[Eligibility]("eligibility", 100, time.Minute),
		Logger:   zerolog.Nop(),
	}
}

func TestShouldRunForTrueWholesaleOnlyWhenExtensionActive(t *testing.T) {
	ctx := context.Background()
	wholesale := common.Session{UserID: "1", Roles: []string{"wholesale_customer"}}
	educator := common.Session{UserID: "2", Roles: []string{"educator"}}

	active := newLayer(true, &stubRegistry{})
	require.False(t, active.ShouldRunFor(ctx, wholesale))
	require.True(t, active.ShouldRunFor(ctx, educator))

	inactive := newLayer(false, &stubRegistry{})
	require.True(t, inactive.ShouldRunFor(ctx, wholesale))
}

func TestShouldRunForUsesExactLabels(t *testing.T) {
	ctx := context.Background()
	l := newLayer(true, &stubRegistry{})
	for _, role := range []string{"wholesale", "wholesale_customer_plus", "Dealer", "dealer_network"} {
		require.True(t, l.ShouldRunFor(ctx, common.Session{UserID: "u", Roles: []string{role}}), role)
	}
	require.False(t, l.ShouldRunFor(ctx, common.Session{UserID: "u", Roles: []string{"customer", "dealer"}}))

	l.TrueWholesaleRoles = []string{"distributor"}
	require.True(t, l.ShouldRunFor(ctx, common.Session{UserID: "u", Roles: []string{"dealer"}}))
	require.False(t, l.ShouldRunFor(ctx, common.Session{UserID: "u", Roles: []string{"distributor"}}))
}

func TestEligibilityExcludesWholesaleRolesAndCaches(t *testing.T) {
	ctx := context.Background()
	reg := &stubRegistry{enabled: []string{"vip", "educator", "wwp_wholesale_customer", "trade"}, wholesale: []string{"trade"}}
	l := newLayer(false, reg)

	user := common.Session{UserID: "7", Roles: []string{"vip", "educator", "wwp_wholesale_customer", "trade"}}
	elig := l.Eligibility(ctx, user)
	require.True(t, elig.Run)
	require.Equal(t, []string{"educator", "vip"}, elig.Roles)

	_ = l.Eligibility(ctx, user)
	require.Equal(t, 1, reg.calls, "second lookup is served from cache")

	l.InvalidateUser("7")
	_ = l.Eligibility(ctx, user)
	require.Equal(t, 2, reg.calls)

	l.Purge()
	_ = l.Eligibility(ctx, user)
	require.Equal(t, 3, reg.calls)
}

func TestEligibilityMergesDetectedExtensionRoles(t *testing.T) {
	ctx := context.Background()
	reg := &stubRegistry{enabled: []string{"vip", "b2b_tier"}}
	l := newLayer(true, reg)
	l.Detector = StaticDetector{Active: true, Roles: []string{"b2b_tier"}}

	elig := l.Eligibility(ctx, common.Session{UserID: "9", Roles: []string{"vip", "b2b_tier"}})
	require.True(t, elig.Run)
	require.Equal(t, []string{"vip"}, elig.Roles)
}

func TestEligibilityFailsOpenWithoutCaching(t *testing.T) {
	ctx := context.Background()
	reg := &stubRegistry{err: errors.New("redis down")}
	l := newLayer(false, reg)

	elig := l.Eligibility(ctx, common.Session{UserID: "1", Roles: []string{"vip"}})
	require.True(t, elig.Run)
	require.Empty(t, elig.Roles)
	require.Zero(t, l.Cache.Len())

	require.Equal(t, Eligibility{}, l.Eligibility(ctx, common.Session{}), "visitors are never eligible")
}

func TestRefreshPurgesCacheOnRegistrationChange(t *testing.T) {
	ctx := context.Background()
	det := &flakyDetector{det: Detection{Active: false}}
	reg := &stubRegistry{enabled: []string{"vip"}}
	l := newLayer(false, reg)
	l.Detector = det

	_ = l.Eligibility(ctx, common.Session{UserID: "1", Roles: []string{"vip"}})
	require.Equal(t, 1, l.Cache.Len())

	_, changed, err := l.Refresh(ctx)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 1, l.Cache.Len())

	det.det = Detection{Active: true}
	_, changed, err = l.Refresh(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	require.Zero(t, l.Cache.Len())
}

type countingDetector struct {
	flakyDetector
	calls int
}

func (c *countingDetector) Detect(ctx context.Context) (Detection, error) {
	c.calls++
	return c.flakyDetector.Detect(ctx)
}

func TestDetectionFailureBacksOffAndKeepsWholesaleOut(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	det := &countingDetector{flakyDetector: flakyDetector{err: errors.New("chains unavailable")}}
	l := newLayer(false, &stubRegistry{enabled: []string{"vip", "dealer"}})
	l.Detector = det
	l.DetectionBackoff = time.Minute
	l.Now = func() time.Time { return now }

	dealer := common.Session{UserID: "d1", Roles: []string{"dealer", "vip"}}
	require.False(t, l.ShouldRunFor(ctx, dealer), "true wholesale roles stay with the extension while detection is down")
	require.True(t, l.ExtensionActive(ctx))
	require.Equal(t, 1, det.calls, "failure is remembered until the backoff elapses")

	now = now.Add(2 * time.Minute)
	det.err = nil
	det.det = Detection{Active: false}
	require.True(t, l.ShouldRunFor(ctx, dealer))
	require.Equal(t, 2, det.calls)
}

func TestDetectionKeepsLastGoodStateAfterFailure(t *testing.T) {
	ctx := context.Background()
	det := &flakyDetector{det: Detection{Active: true, Roles: []string{"b2b"}}}
	l := newLayer(false, &stubRegistry{})
	l.Detector = det

	_, _, err := l.Refresh(ctx)
	require.NoError(t, err)
	det.err = errors.New("boom")
	_, _, err = l.Refresh(ctx)
	require.Error(t, err)

	got := l.Detection(ctx)
	require.True(t, got.Active)
	require.Equal(t, []string{"b2b"}, got.Roles)
}
