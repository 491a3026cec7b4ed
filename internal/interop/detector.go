package interop

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"

	"github.com/noah-isme/toko-rolepricing/internal/hooks"
)

// ExtensionOwner is the owner tag the wholesale extension registers its handlers under.
const ExtensionOwner = "wholesale"

// Detection describes what is known about the co-installed wholesale extension.
type Detection struct {
	Active bool
	// Priorities holds the extension's handler priority per hook point, when known.
	Priorities map[hooks.Point]int
	// Roles is the extension's own wholesale role taxonomy.
	Roles []string
}

// Equal reports whether two detections describe the same registration.
func (d Detection) Equal(o Detection) bool {
	return d.Active == o.Active &&
		maps.Equal(d.Priorities, o.Priorities) &&
		slices.Equal(sortedCopy(d.Roles), sortedCopy(o.Roles))
}

// Detector finds the wholesale extension and the priorities it registered at.
type Detector interface {
	Detect(ctx context.Context) (Detection, error)
}

// StaticDetector reports a detection taken from configuration.
type StaticDetector struct {
	Active     bool
	Priorities map[hooks.Point]int
	Roles      []string
}

// Detect returns the configured detection.
func (s StaticDetector) Detect(context.Context) (Detection, error) {
	return Detection{
		Active:     s.Active,
		Priorities: maps.Clone(s.Priorities),
		Roles:      slices.Clone(s.Roles),
	}, nil
}

// RoleTaxonomy lists the wholesale roles an extension defines.
type RoleTaxonomy interface {
	WholesaleRoles(ctx context.Context) ([]string, error)
}

// HookDetector asks the hook chains which priority the extension's handlers run at.
type HookDetector struct {
	Chains map[hooks.Point]hooks.Ordered
	Owner  string
	// Active forces the extension to be reported active even without registered handlers.
	Active   bool
	Taxonomy RoleTaxonomy
}

// Detect inspects every chain for handlers owned by the extension.
func (h HookDetector) Detect(ctx context.Context) (Detection, error) {
	if len(h.Chains) == 0 {
		return Detection{}, errors.New("interop: no hook chains to inspect")
	}
	owner := h.Owner
	if owner == "" {
		owner = ExtensionOwner
	}
	det := Detection{Active: h.Active, Priorities: make(map[hooks.Point]int)}
	for point, chain := range h.Chains {
		if chain == nil {
			continue
		}
		if p, ok := chain.PriorityOf(owner); ok {
			det.Priorities[point] = p
			det.Active = true
		}
	}
	if det.Active && h.Taxonomy != nil {
		roles, err := h.Taxonomy.WholesaleRoles(ctx)
		if err != nil {
			return det, err
		}
		det.Roles = sortedCopy(roles)
	}
	return det, nil
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	sort.Strings(out)
	return out
}
