// Package hooks provides priority-ordered handler chains that several pricing
// components can attach to.
package hooks

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Point names a place in the pricing pipeline where handlers run.
type Point string

const (
	PointCatalogPrice   Point = "catalog.price"
	PointVariablePrice  Point = "catalog.variable_price"
	PointVariationPrice Point = "catalog.variation_price"
	PointCartTotals     Point = "cart.before_totals"
)

// Points lists every hook point in pipeline order.
func Points() []Point {
	return []Point{PointCatalogPrice, PointVariablePrice, PointVariationPrice, PointCartTotals}
}

// Func transforms a value flowing through a chain.
type Func[T any] func(ctx context.Context, v T) T

// Handler is a chain member. Lower priorities run first.
type Handler[T any] struct {
	ID       string
	Owner    string
	Priority int
	Fn       Func[T]
}

// Ordered is the priority view of a chain used for arbitration.
type Ordered interface {
	// PriorityOf reports the highest priority registered by owner.
	PriorityOf(owner string) (int, bool)
	// PriorityOfHandler reports the priority of the handler with id.
	PriorityOfHandler(id string) (int, bool)
	// Reprioritize moves the handler with id. It reports whether the handler exists.
	Reprioritize(id string, priority int) bool
}

type entry[T any] struct {
	Handler[T]
	seq uint64
}

// Chain runs handlers in ascending priority, registration order breaking ties.
type Chain[T any] struct {
	mu      sync.RWMutex
	point   Point
	entries []entry[T]
	seq     uint64
}

// NewChain creates an empty chain for point.
func NewChain[T any](point Point) *Chain[T] {
	return &Chain[T]{point: point}
}

// Point returns the hook point the chain serves.
func (c *Chain[T]) Point() Point { return c.point }

// Add registers h. A handler with the same id is replaced, so repeated adds never duplicate.
func (c *Chain[T]) Add(h Handler[T]) {
	if h.Fn == nil || h.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID == h.ID {
			c.entries[i].Handler = h
			c.sortLocked()
			return
		}
	}
	c.seq++
	c.entries = append(c.entries, entry[T]{Handler: h, seq: c.seq})
	c.sortLocked()
}

// Remove unregisters the handler with id.
func (c *Chain[T]) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = slices.DeleteFunc(c.entries, func(e entry[T]) bool { return e.ID == id })
}

// Reprioritize moves the handler with id to priority.
func (c *Chain[T]) Reprioritize(id string, priority int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries[i].Priority = priority
			c.sortLocked()
			return true
		}
	}
	return false
}

// PriorityOf reports the highest priority registered by owner.
func (c *Chain[T]) PriorityOf(owner string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	found := false
	best := 0
	for _, e := range c.entries {
		if e.Owner != owner {
			continue
		}
		if !found || e.Priority > best {
			best = e.Priority
		}
		found = true
	}
	return best, found
}

// PriorityOfHandler reports the priority of the handler with id.
func (c *Chain[T]) PriorityOfHandler(id string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.ID == id {
			return e.Priority, true
		}
	}
	return 0, false
}

// Handlers returns a snapshot of the registered handlers in run order.
func (c *Chain[T]) Handlers() []Handler[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Handler[T], len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Handler
	}
	return out
}

// Run passes v through every handler in order.
func (c *Chain[T]) Run(ctx context.Context, v T) T {
	if c == nil {
		return v
	}
	for _, h := range c.Handlers() {
		v = h.Fn(ctx, v)
	}
	return v
}

func (c *Chain[T]) sortLocked() {
	slices.SortStableFunc(c.entries, func(a, b entry[T]) int {
		if a.Priority != b.Priority {
			return cmp.Compare(a.Priority, b.Priority)
		}
		return cmp.Compare(a.seq, b.seq)
	})
}
