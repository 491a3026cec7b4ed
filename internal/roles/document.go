package roles

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/pricing"
)

// CategoryDiscounts maps a category id to an explicit discount override.
type CategoryDiscounts map[int64]decimal.Decimal

// UnmarshalJSON accepts an empty JSON array for an empty map, which older exports emit.
func (c *CategoryDiscounts) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		*c = CategoryDiscounts{}
		return nil
	}
	var m map[int64]decimal.Decimal
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*c = m
	return nil
}

// Config is the pricing configuration of one role.
type Config struct {
	Enabled           bool              `json:"enabled"`
	BaseDiscount      decimal.Decimal   `json:"base_discount" validate:"gte=0,lte=100"`
	CategoryDiscounts CategoryDiscounts `json:"category_discounts" validate:"dive,keys,gt=0,endkeys,gte=0,lte=100"`
	ShippingMethods   []string          `json:"shipping_methods" validate:"dive,required,max=64"`
}

// normalized returns a copy with every discount rounded to two decimals.
func (c Config) normalized() Config {
	out := Config{
		Enabled:           c.Enabled,
		BaseDiscount:      pricing.Round2(c.BaseDiscount),
		CategoryDiscounts: make(CategoryDiscounts, len(c.CategoryDiscounts)),
		ShippingMethods:   slices.Clone(c.ShippingMethods),
	}
	for id, pct := range c.CategoryDiscounts {
		out.CategoryDiscounts[id] = pricing.Round2(pct)
	}
	if out.ShippingMethods == nil {
		out.ShippingMethods = []string{}
	}
	return out
}

// CustomRole is a role created through the registry rather than shipped by the platform.
type CustomRole struct {
	DisplayName  string          `json:"display_name"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Document is the persisted discount configuration.
type Document struct {
	Roles       map[string]Config     `json:"enabled_roles"`
	CustomRoles map[string]CustomRole `json:"custom_roles"`
	// WholesaleRoles extends the built-in set of roles excluded from role pricing.
	WholesaleRoles []string   `json:"wholesale_roles,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the document with nil maps initialised.
func (d Document) Clone() Document {
	out := Document{
		Roles:          make(map[string]Config, len(d.Roles)),
		CustomRoles:    make(map[string]CustomRole, len(d.CustomRoles)),
		WholesaleRoles: slices.Clone(d.WholesaleRoles),
		UpdatedAt:      d.UpdatedAt,
	}
	for key, cfg := range d.Roles {
		out.Roles[key] = cfg.normalized()
	}
	for key, cr := range d.CustomRoles {
		cr.Capabilities = maps.Clone(cr.Capabilities)
		out.CustomRoles[key] = cr
	}
	return out
}

// Role returns the configuration for role, or defaults when none is stored.
func (d Document) Role(role string) (Config, bool) {
	cfg, ok := d.Roles[role]
	if !ok {
		return Config{CategoryDiscounts: CategoryDiscounts{}, ShippingMethods: []string{}}, false
	}
	return cfg.normalized(), true
}

// EnabledRoles lists roles whose pricing is switched on, sorted by key.
func (d Document) EnabledRoles() []string {
	out := make([]string, 0, len(d.Roles))
	for key, cfg := range d.Roles {
		if cfg.Enabled {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// BaseDiscount returns the role's base discount rounded to two decimals.
func (d Document) BaseDiscount(role string) decimal.Decimal {
	return pricing.Round2(d.Roles[role].BaseDiscount)
}

// CategoryDiscount returns the explicit override for role and category, if any.
func (d Document) CategoryDiscount(role string, categoryID int64) (decimal.Decimal, bool) {
	pct, ok := d.Roles[role].CategoryDiscounts[categoryID]
	if !ok {
		return decimal.Zero, false
	}
	return pricing.Round2(pct), true
}

var _ pricing.RoleRules = Document{}
