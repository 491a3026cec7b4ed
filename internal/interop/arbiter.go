package interop

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-rolepricing/internal/hooks"
	"github.com/noah-isme/toko-rolepricing/internal/obs"
)

// Ordering defaults.
const (
	DefaultPriorityBuffer   = 5
	DefaultHandlerPriority  = 10
	DefaultFallbackPriority = 15
)

// Placement modes.
const (
	ModeDetected = "detected"
	ModeFallback = "fallback"
	ModeDefault  = "default"
)

// Binding ties one of our handlers to the chain it lives in.
type Binding struct {
	Point     hooks.Point
	Chain     hooks.Ordered
	HandlerID string
}

// Placement is the priority chosen for a binding.
type Placement struct {
	Point    hooks.Point `json:"point"`
	Priority int         `json:"priority"`
	Mode     string      `json:"mode"`
	Moved    bool        `json:"moved"`
}

// Arbiter keeps our handlers strictly after the wholesale extension's.
type Arbiter struct {
	Layer    *Layer
	Bindings []Binding
	// Buffer is added to the extension's priority.
	Buffer int
	// DefaultPriority is used when the extension is not active.
	DefaultPriority int
	// FallbackPriority is used when the extension is active but its priority is unknown.
	FallbackPriority int
	Logger           zerolog.Logger

	mu sync.Mutex
}

// Sync re-detects the extension and moves our handlers when their priority must change.
// Repeated calls with an unchanged registration leave the chains untouched.
func (a *Arbiter) Sync(ctx context.Context) []Placement {
	a.mu.Lock()
	defer a.mu.Unlock()

	det, changed, err := a.Layer.Refresh(ctx)
	failed := err != nil
	if failed {
		a.Logger.Warn().Err(err).Msg("wholesale hook detection failed, using fallback ordering")
	}

	placements := make([]Placement, 0, len(a.Bindings))
	for _, b := range a.Bindings {
		if b.Chain == nil {
			continue
		}
		pl := a.place(b.Point, det, failed)
		current, ok := b.Chain.PriorityOfHandler(b.HandlerID)
		if !ok {
			a.Logger.Warn().Str("point", string(b.Point)).Str("handler", b.HandlerID).Msg("handler not registered, skipping ordering")
			continue
		}
		if current != pl.Priority {
			b.Chain.Reprioritize(b.HandlerID, pl.Priority)
			pl.Moved = true
			a.Logger.Info().
				Str("point", string(b.Point)).
				Int("from", current).
				Int("to", pl.Priority).
				Str("mode", pl.Mode).
				Msg("role pricing handler reordered")
		}
		if pl.Moved || changed {
			obs.CountArbitration(string(b.Point), pl.Mode)
		}
		placements = append(placements, pl)
	}
	return placements
}

// Watch runs Sync every interval until ctx is done.
func (a *Arbiter) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Sync(ctx)
		}
	}
}

func (a *Arbiter) place(point hooks.Point, det Detection, failed bool) Placement {
	if failed {
		return Placement{Point: point, Priority: a.fallback(), Mode: ModeFallback}
	}
	if !det.Active {
		return Placement{Point: point, Priority: a.defaultPriority(), Mode: ModeDefault}
	}
	if p, ok := det.Priorities[point]; ok {
		return Placement{Point: point, Priority: p + a.buffer(), Mode: ModeDetected}
	}
	return Placement{Point: point, Priority: a.fallback(), Mode: ModeFallback}
}

func (a *Arbiter) buffer() int {
	if a.Buffer > 0 {
		return a.Buffer
	}
	return DefaultPriorityBuffer
}

func (a *Arbiter) defaultPriority() int {
	if a.DefaultPriority != 0 {
		return a.DefaultPriority
	}
	return DefaultHandlerPriority
}

func (a *Arbiter) fallback() int {
	if a.FallbackPriority != 0 {
		return a.FallbackPriority
	}
	return DefaultFallbackPriority
}
