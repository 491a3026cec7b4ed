package pricing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrResolverNotConfigured is returned when the resolver is missing its collaborators.
var ErrResolverNotConfigured = errors.New("discount resolver not configured")

// RoleRules is the read view of role configuration consumed during resolution.
type RoleRules interface {
	EnabledRoles() []string
	BaseDiscount(role string) decimal.Decimal
	CategoryDiscount(role string, categoryID int64) (decimal.Decimal, bool)
}

// RuleSource yields the role configuration in effect for the current request.
type RuleSource interface {
	Rules(ctx context.Context) (RoleRules, error)
}

// CategoryTree exposes the catalog taxonomy. found is false for unknown categories;
// a root category reports parent 0.
type CategoryTree interface {
	CategoryParent(ctx context.Context, categoryID int64) (parent int64, found bool, err error)
}

// Resolution explains a resolved discount.
type Resolution struct {
	Percent decimal.Decimal
	// Role is the applicable role that produced Percent. Empty when no discount applies.
	Role string
	// CategoryID is the category whose override won, or 0 when the role's base discount won.
	CategoryID int64
}

// Discounted reports whether the resolution carries a positive discount.
func (r Resolution) Discounted() bool {
	return r.Percent.IsPositive()
}

// Resolver computes the discount percentage for a product's categories and a set of roles.
type Resolver struct {
	Rules RuleSource
	Tree  CategoryTree
}

// Resolve returns the discount percentage in [0,100] for the given categories and roles.
func (r *Resolver) Resolve(ctx context.Context, categoryIDs []int64, roles []string) (decimal.Decimal, error) {
	res, err := r.Explain(ctx, categoryIDs, roles)
	if err != nil {
		return decimal.Zero, err
	}
	return res.Percent, nil
}

// Explain resolves the discount and reports which role and category produced it.
//
// Each enabled role is resolved on its own: the deepest category level holding an
// explicit override for that role wins (even a zero override), otherwise the role's
// base discount applies. The largest positive value across roles is returned.
func (r *Resolver) Explain(ctx context.Context, categoryIDs []int64, roles []string) (Resolution, error) {
	none := Resolution{Percent: decimal.Zero}
	if len(roles) == 0 {
		return none, nil
	}
	if r == nil || r.Rules == nil {
		return none, ErrResolverNotConfigured
	}
	rules, err := r.Rules.Rules(ctx)
	if err != nil {
		return none, fmt.Errorf("load role rules: %w", err)
	}
	eligible := enabledAmong(rules, roles)
	if len(eligible) == 0 {
		return none, nil
	}

	var levels [][]int64
	if len(categoryIDs) > 0 {
		if r.Tree == nil {
			return none, ErrResolverNotConfigured
		}
		levels, err = r.levels(ctx, categoryIDs)
		if err != nil {
			return none, err
		}
	}

	best := none
	for _, role := range eligible {
		candidate := Resolution{Role: role, Percent: ClampPercent(rules.BaseDiscount(role))}
		if id, pct, ok := firstOverride(rules, role, levels); ok {
			candidate.Percent = ClampPercent(pct)
			candidate.CategoryID = id
		}
		if !candidate.Percent.IsPositive() {
			continue
		}
		if candidate.Percent.GreaterThan(best.Percent) {
			best = candidate
		}
	}
	return best, nil
}

// levels groups every category and its ancestors by depth, deepest level first.
// Categories inside a level are sorted by id.
func (r *Resolver) levels(ctx context.Context, categoryIDs []int64) ([][]int64, error) {
	depth := make(map[int64]int)
	maxDepth := -1
	for _, id := range categoryIDs {
		chain, err := r.chain(ctx, id)
		if err != nil {
			return nil, err
		}
		for i, c := range chain {
			d := len(chain) - 1 - i
			depth[c] = d
			if d > maxDepth {
				maxDepth = d
			}
		}
	}
	if maxDepth < 0 {
		return nil, nil
	}
	levels := make([][]int64, maxDepth+1)
	for id, d := range depth {
		idx := maxDepth - d
		levels[idx] = append(levels[idx], id)
	}
	for _, level := range levels {
		slices.Sort(level)
	}
	return levels, nil
}

// chain walks from id to its root. The walk stops at parent 0, at an unknown
// category, or when a category repeats.
func (r *Resolver) chain(ctx context.Context, id int64) ([]int64, error) {
	var chain []int64
	seen := make(map[int64]struct{})
	for cur := id; cur > 0; {
		if _, dup := seen[cur]; dup {
			break
		}
		parent, found, err := r.Tree.CategoryParent(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("category %d parent: %w", cur, err)
		}
		if !found {
			break
		}
		seen[cur] = struct{}{}
		chain = append(chain, cur)
		cur = parent
	}
	return chain, nil
}

func firstOverride(rules RoleRules, role string, levels [][]int64) (int64, decimal.Decimal, bool) {
	for _, level := range levels {
		for _, id := range level {
			if pct, ok := rules.CategoryDiscount(role, id); ok {
				return id, pct, true
			}
		}
	}
	return 0, decimal.Zero, false
}

func enabledAmong(rules RoleRules, roles []string) []string {
	enabled := make(map[string]struct{})
	for _, role := range rules.EnabledRoles() {
		enabled[role] = struct{}{}
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if _, ok := enabled[role]; ok && !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out
}
