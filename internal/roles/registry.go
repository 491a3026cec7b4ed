package roles

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/pricing"
)

var (
	// ErrInvalidConfig is returned when a role configuration fails validation.
	ErrInvalidConfig = errors.New("invalid role configuration")
	// ErrInvalidRoleKey is returned for role keys outside [a-z0-9_].
	ErrInvalidRoleKey = errors.New("invalid role key")
	// ErrInvalidCategory is returned for non-positive category ids.
	ErrInvalidCategory = errors.New("invalid category id")
	// ErrReservedRole is returned when a write targets a role that cannot carry pricing.
	ErrReservedRole = errors.New("role cannot be configured")
	// ErrRoleNotFound is returned when the role is neither a platform nor a custom role.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists is returned when a custom role key is already taken.
	ErrRoleExists = errors.New("role already exists")
	// ErrUnknownShippingMethod is returned for shipping methods outside the allowed set.
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
)

// AdministratorRole never receives role pricing.
const AdministratorRole = "administrator"

// CommonShippingMethods are always accepted for a role.
var CommonShippingMethods = []string{"flat_rate", "free_shipping", "local_pickup", "local_delivery"}

// Registry reads and writes role pricing configuration.
type Registry struct {
	Store Store
	// PlatformRoles are the roles defined by the shop platform itself.
	PlatformRoles []string
	// ShippingMethods extends CommonShippingMethods.
	ShippingMethods []string
	Validate        *validator.Validate
	// OnChange runs after every successful write.
	OnChange func(ctx context.Context)
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Document returns the current settings. A missing document yields an empty one.
func (r *Registry) Document(ctx context.Context) (Document, error) {
	if r == nil || r.Store == nil {
		return Document{}, errors.New("role registry not configured")
	}
	doc, _, err := r.Store.Load(ctx)
	if err != nil {
		return Document{}, err
	}
	return doc.Clone(), nil
}

// Rules returns the role configuration in effect for this request.
func (r *Registry) Rules(ctx context.Context) (pricing.RoleRules, error) {
	doc, err := r.Document(ctx)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// EnabledRoles lists roles with pricing switched on.
func (r *Registry) EnabledRoles(ctx context.Context) ([]string, error) {
	doc, err := r.Document(ctx)
	if err != nil {
		return nil, err
	}
	return doc.EnabledRoles(), nil
}

// BaseDiscount returns the base discount of role, 0 when unset.
func (r *Registry) BaseDiscount(ctx context.Context, role string) (decimal.Decimal, error) {
	doc, err := r.Document(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return doc.BaseDiscount(role), nil
}

// CategoryDiscount returns the explicit override of role for category, if any.
func (r *Registry) CategoryDiscount(ctx context.Context, role string, categoryID int64) (decimal.Decimal, bool, error) {
	doc, err := r.Document(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}
	pct, ok := doc.CategoryDiscount(role, categoryID)
	return pct, ok, nil
}

// RoleConfig returns the stored configuration of role or its defaults.
func (r *Registry) RoleConfig(ctx context.Context, role string) (Config, error) {
	doc, err := r.Document(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, _ := doc.Role(role)
	return cfg, nil
}

// ConfigurableRoles lists platform and custom roles that may carry pricing.
func (r *Registry) ConfigurableRoles(ctx context.Context) ([]string, error) {
	doc, err := r.Document(ctx)
	if err != nil {
		return nil, err
	}
	return r.configurable(doc), nil
}

// WholesaleRoles returns the registry's additions to the excluded role set.
func (r *Registry) WholesaleRoles(ctx context.Context) ([]string, error) {
	doc, err := r.Document(ctx)
	if err != nil {
		return nil, err
	}
	return doc.WholesaleRoles, nil
}

// SaveRole validates cfg and stores it for role, replacing the previous configuration.
func (r *Registry) SaveRole(ctx context.Context, role string, cfg Config) error {
	if err := r.validateConfig(cfg); err != nil {
		return err
	}
	return r.update(ctx, func(doc *Document) error {
		if err := r.checkConfigurable(*doc, role); err != nil {
			return err
		}
		doc.Roles[role] = cfg.normalized()
		return nil
	})
}

// SetCategoryDiscount stores an explicit override, keeping the rest of the role untouched.
func (r *Registry) SetCategoryDiscount(ctx context.Context, role string, categoryID int64, pct decimal.Decimal) error {
	if categoryID <= 0 {
		return ErrInvalidCategory
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: discount %s outside 0..100", ErrInvalidConfig, pct)
	}
	return r.update(ctx, func(doc *Document) error {
		if err := r.checkConfigurable(*doc, role); err != nil {
			return err
		}
		cfg, _ := doc.Role(role)
		cfg.CategoryDiscounts[categoryID] = pricing.Round2(pct)
		doc.Roles[role] = cfg
		return nil
	})
}

// RemoveCategoryDiscount drops an override so the category falls back to inherited values.
func (r *Registry) RemoveCategoryDiscount(ctx context.Context, role string, categoryID int64) error {
	if categoryID <= 0 {
		return ErrInvalidCategory
	}
	return r.update(ctx, func(doc *Document) error {
		cfg, ok := doc.Role(role)
		if !ok {
			return nil
		}
		delete(cfg.CategoryDiscounts, categoryID)
		doc.Roles[role] = cfg
		return nil
	})
}

// ResetRole removes the role's configuration entirely.
func (r *Registry) ResetRole(ctx context.Context, role string) error {
	return r.update(ctx, func(doc *Document) error {
		delete(doc.Roles, role)
		return nil
	})
}

// AddCustomRole registers a new role key with a display name.
func (r *Registry) AddCustomRole(ctx context.Context, key, displayName string) (CustomRole, error) {
	key = strings.TrimSpace(key)
	displayName = strings.TrimSpace(displayName)
	if !ValidRoleKey(key) {
		return CustomRole{}, ErrInvalidRoleKey
	}
	if displayName == "" {
		return CustomRole{}, fmt.Errorf("%w: display name required", ErrInvalidConfig)
	}
	role := CustomRole{
		DisplayName:  displayName,
		Capabilities: map[string]bool{"read": true},
		CreatedAt:    r.now().UTC(),
	}
	err := r.update(ctx, func(doc *Document) error {
		if key == AdministratorRole || slices.Contains(r.PlatformRoles, key) {
			return ErrRoleExists
		}
		if _, ok := doc.CustomRoles[key]; ok {
			return ErrRoleExists
		}
		doc.CustomRoles[key] = role
		return nil
	})
	if err != nil {
		return CustomRole{}, err
	}
	return role, nil
}

// RemoveCustomRole deletes a custom role together with its pricing configuration.
func (r *Registry) RemoveCustomRole(ctx context.Context, key string) error {
	return r.update(ctx, func(doc *Document) error {
		if _, ok := doc.CustomRoles[key]; !ok {
			return ErrRoleNotFound
		}
		delete(doc.CustomRoles, key)
		delete(doc.Roles, key)
		return nil
	})
}

// SetWholesaleRoles replaces the registry's additions to the excluded role set.
func (r *Registry) SetWholesaleRoles(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if !ValidRoleKey(key) {
			return fmt.Errorf("%w: %q", ErrInvalidRoleKey, key)
		}
	}
	sorted := slices.Clone(keys)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)
	return r.update(ctx, func(doc *Document) error {
		doc.WholesaleRoles = sorted
		return nil
	})
}

func (r *Registry) update(ctx context.Context, fn func(*Document) error) error {
	if r == nil || r.Store == nil {
		return errors.New("role registry not configured")
	}
	err := r.Store.Update(ctx, func(doc *Document) error {
		if doc.Roles == nil {
			doc.Roles = map[string]Config{}
		}
		if doc.CustomRoles == nil {
			doc.CustomRoles = map[string]CustomRole{}
		}
		if err := fn(doc); err != nil {
			return err
		}
		now := r.now().UTC()
		doc.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	r.Logger.Info().Msg("role pricing settings updated")
	if r.OnChange != nil {
		r.OnChange(ctx)
	}
	return nil
}

func (r *Registry) validateConfig(cfg Config) error {
	v := r.Validate
	if v == nil {
		v = NewValidator()
	}
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	allowed := append(slices.Clone(CommonShippingMethods), r.ShippingMethods...)
	for _, method := range cfg.ShippingMethods {
		if !slices.Contains(allowed, method) {
			return fmt.Errorf("%w: %s", ErrUnknownShippingMethod, method)
		}
	}
	return nil
}

func (r *Registry) checkConfigurable(doc Document, role string) error {
	if role == AdministratorRole {
		return ErrReservedRole
	}
	if !ValidRoleKey(role) {
		return ErrInvalidRoleKey
	}
	if !slices.Contains(r.configurable(doc), role) {
		return ErrRoleNotFound
	}
	return nil
}

func (r *Registry) configurable(doc Document) []string {
	set := make(map[string]struct{}, len(r.PlatformRoles)+len(doc.CustomRoles))
	for _, role := range r.PlatformRoles {
		set[role] = struct{}{}
	}
	for key := range doc.CustomRoles {
		set[key] = struct{}{}
	}
	delete(set, AdministratorRole)
	return slices.Sorted(maps.Keys(set))
}

func (r *Registry) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
