// Package interop decides whether role pricing runs alongside the co-installed
// wholesale extension and orders the two on shared hook points.
package interop

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-rolepricing/internal/cache"
	"github.com/noah-isme/toko-rolepricing/internal/common"
	"github.com/noah-isme/toko-rolepricing/internal/roles"
)

// DefaultTrueWholesaleRoles are the role labels that hand pricing over to the extension.
var DefaultTrueWholesaleRoles = []string{"wholesale_customer", "wwp_wholesale_customer", "dealer"}

// BaseExcludedRoles never receive role pricing.
var BaseExcludedRoles = []string{"wholesale_customer", "wwp_wholesale_customer"}

// DefaultDetectionBackoff spaces out detection retries after a failure.
const DefaultDetectionBackoff = 30 * time.Second

// RoleSource is the part of the role registry the layer reads.
type RoleSource interface {
	EnabledRoles(ctx context.Context) ([]string, error)
	WholesaleRoles(ctx context.Context) ([]string, error)
}

// Eligibility is the per-user outcome of the interop checks.
type Eligibility struct {
	// Run is false when the wholesale extension owns pricing for the user.
	Run bool
	// Roles are the user's applicable roles.
	Roles []string
}

// Layer tracks the wholesale extension and computes per-user eligibility.
type Layer struct {
	Detector Detector
	Registry RoleSource
	// TrueWholesaleRoles overrides DefaultTrueWholesaleRoles when non-empty.
	TrueWholesaleRoles []string
	Cache              *cache.TTL[Eligibility]
	Logger             zerolog.Logger
	// DetectionBackoff overrides DefaultDetectionBackoff.
	DetectionBackoff time.Duration
	Now              func() time.Time

	mu       sync.RWMutex
	state    Detection
	detected bool
	failedAt time.Time
}

func (l *Layer) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Layer) backoff() time.Duration {
	if l.DetectionBackoff > 0 {
		return l.DetectionBackoff
	}
	return DefaultDetectionBackoff
}

// assumedDetection stands in while the extension has never been detected successfully.
// Holders of a true wholesale role are left to the extension.
func assumedDetection() Detection {
	return Detection{Active: true}
}

// Refresh re-runs detection. changed reports whether the registration differs from
// the previous one; a change drops every cached eligibility.
func (l *Layer) Refresh(ctx context.Context) (Detection, bool, error) {
	if l.Detector == nil {
		return Detection{}, false, nil
	}
	det, err := l.Detector.Detect(ctx)
	if err != nil {
		l.mu.Lock()
		l.failedAt = l.now()
		l.mu.Unlock()
		return Detection{}, false, err
	}
	l.mu.Lock()
	changed := !l.detected || !l.state.Equal(det)
	l.state = det
	l.detected = true
	l.failedAt = time.Time{}
	l.mu.Unlock()
	if changed {
		l.Cache.Purge()
		l.Logger.Info().
			Bool("active", det.Active).
			Strs("roles", det.Roles).
			Msg("wholesale extension registration detected")
	}
	return det, changed, nil
}

// Detection returns the last successful detection, detecting lazily on first use.
// A failed detection is retried only after the backoff; until one succeeds the
// extension is assumed active.
func (l *Layer) Detection(ctx context.Context) Detection {
	l.mu.RLock()
	det, ok, failedAt := l.state, l.detected, l.failedAt
	l.mu.RUnlock()
	if ok {
		return det
	}
	if l.Detector == nil {
		return Detection{}
	}
	if !failedAt.IsZero() && l.now().Sub(failedAt) < l.backoff() {
		return assumedDetection()
	}
	det, _, err := l.Refresh(ctx)
	if err != nil {
		l.Logger.Warn().Err(err).Dur("retry_in", l.backoff()).Msg("wholesale extension detection failed, assuming it is active")
		return assumedDetection()
	}
	return det
}

// ExtensionActive reports whether the wholesale extension is installed and active.
func (l *Layer) ExtensionActive(ctx context.Context) bool {
	return l.Detection(ctx).Active
}

// ShouldRunFor is false only when the user holds an exact true-wholesale label and
// the extension is active. Look-alike roles such as "educator" keep role pricing.
func (l *Layer) ShouldRunFor(ctx context.Context, user common.Session) bool {
	trueRoles := l.TrueWholesaleRoles
	if len(trueRoles) == 0 {
		trueRoles = DefaultTrueWholesaleRoles
	}
	holds := slices.ContainsFunc(user.Roles, func(r string) bool { return slices.Contains(trueRoles, r) })
	if !holds {
		return true
	}
	return !l.ExtensionActive(ctx)
}

// ExcludedRoles merges the built-in, registry and extension wholesale roles.
func (l *Layer) ExcludedRoles(ctx context.Context) ([]string, error) {
	out := slices.Clone(BaseExcludedRoles)
	if l.Registry != nil {
		extra, err := l.Registry.WholesaleRoles(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, extra...)
	}
	out = append(out, l.Detection(ctx).Roles...)
	return slices.Compact(sortedCopy(out)), nil
}

// Eligibility returns the cached eligibility of user, computing it on a miss.
// Lookup failures yield no applicable roles and are not cached.
func (l *Layer) Eligibility(ctx context.Context, user common.Session) Eligibility {
	if user.UserID == "" {
		return Eligibility{}
	}
	elig, err := l.Cache.GetOrCompute(cache.KeyEligibility(user.UserID), func() (Eligibility, error) {
		return l.compute(ctx, user)
	})
	if err != nil {
		l.Logger.Warn().Err(err).Str("user_id", user.UserID).Msg("role eligibility lookup failed, no discount applied")
		return Eligibility{Run: true}
	}
	return elig
}

// InvalidateUser drops the cached eligibility of userID, e.g. on login or logout.
func (l *Layer) InvalidateUser(userID string) {
	l.Cache.Invalidate(cache.KeyEligibility(userID))
}

// Purge drops every cached eligibility, e.g. after a configuration write.
func (l *Layer) Purge() {
	l.Cache.Purge()
}

func (l *Layer) compute(ctx context.Context, user common.Session) (Eligibility, error) {
	if !l.ShouldRunFor(ctx, user) {
		return Eligibility{Run: false}, nil
	}
	if l.Registry == nil {
		return Eligibility{Run: true}, nil
	}
	enabled, err := l.Registry.EnabledRoles(ctx)
	if err != nil {
		return Eligibility{}, err
	}
	excluded, err := l.ExcludedRoles(ctx)
	if err != nil {
		return Eligibility{}, err
	}
	return Eligibility{Run: true, Roles: roles.Applicable(user.Roles, enabled, excluded)}, nil
}
