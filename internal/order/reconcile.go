package order

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/common"
	"github.com/noah-isme/toko-rolepricing/internal/events"
	"github.com/noah-isme/toko-rolepricing/internal/interop"
	"github.com/noah-isme/toko-rolepricing/internal/obs"
	"github.com/noah-isme/toko-rolepricing/internal/pricing"
	"github.com/noah-isme/toko-rolepricing/internal/tax"
)

// DefaultTolerance is the largest unit price drift accepted without correction.
var DefaultTolerance = decimal.RequireFromString("0.01")

const reconcilePoint = "order.reconcile"

// Reconciliation outcomes.
const (
	OutcomeNoDiscounts = "no_discounts"
	OutcomeIneligible  = "ineligible"
	OutcomePassed      = "passed"
	OutcomeCorrected   = "corrected"
)

// UserRoles looks up a purchaser's current roles.
type UserRoles interface {
	Roles(ctx context.Context, userID string) ([]string, error)
}

// EligibilityChecker decides which roles role pricing may use for a user.
type EligibilityChecker interface {
	Eligibility(ctx context.Context, user common.Session) interop.Eligibility
}

// RoleQuoter resolves a discount restricted to the given roles.
type RoleQuoter interface {
	Quote(ctx context.Context, point string, productID int64, roles []string) pricing.Resolution
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// Correction describes one repaired line.
type Correction struct {
	LineID    int64           `json:"lineId"`
	ProductID int64           `json:"productId"`
	Role      string          `json:"role"`
	Original  decimal.Decimal `json:"originalPrice"`
	Persisted decimal.Decimal `json:"persistedPrice"`
	Expected  decimal.Decimal `json:"expectedPrice"`
	Percent   decimal.Decimal `json:"percent"`
	Trigger   string          `json:"trigger"`
}

// Report summarises a reconciliation pass.
type Report struct {
	OrderID     uuid.UUID    `json:"orderId"`
	Trigger     string       `json:"trigger"`
	Outcome     string       `json:"outcome"`
	Checked     int          `json:"checked"`
	Skipped     int          `json:"skipped"`
	Corrections []Correction `json:"corrections"`
}

// Reconciler re-derives discounted line prices from the stamped original price and the
// rules in effect now. It only repairs arithmetic for the role already stamped on a
// line and never switches a line to another role's discount.
type Reconciler struct {
	Orders           Repository
	Users            UserRoles
	Eligibility      EligibilityChecker
	Quoter           RoleQuoter
	Tax              tax.Engine
	PricesIncludeTax bool
	Events           Emitter
	Tolerance        decimal.Decimal
	Logger           zerolog.Logger
}

func (r *Reconciler) tolerance() decimal.Decimal {
	if r.Tolerance.IsPositive() {
		return r.Tolerance
	}
	return DefaultTolerance
}

// Reconcile validates every discounted line of the order and corrects drift in place.
func (r *Reconciler) Reconcile(ctx context.Context, orderID uuid.UUID, trigger string) (Report, error) {
	if r == nil || r.Orders == nil || r.Quoter == nil {
		return Report{}, errors.New("reconciler not configured")
	}
	report := Report{OrderID: orderID, Trigger: trigger, Corrections: []Correction{}}
	o, err := r.Orders.Get(ctx, orderID)
	if err != nil {
		return report, fmt.Errorf("load order: %w", err)
	}
	if !HasDiscounts(o) {
		report.Outcome = OutcomeNoDiscounts
		obs.CountReconciliation(trigger, report.Outcome)
		return report, nil
	}

	var roles []string
	if r.Users != nil {
		roles, err = r.Users.Roles(ctx, o.UserID)
		if err != nil {
			return report, fmt.Errorf("load purchaser roles: %w", err)
		}
	}
	elig := interop.Eligibility{Run: true, Roles: roles}
	if r.Eligibility != nil {
		elig = r.Eligibility.Eligibility(ctx, common.Session{UserID: o.UserID, Roles: roles})
	}
	if !elig.Run {
		report.Outcome = OutcomeIneligible
		r.Logger.Info().Str("order_id", orderID.String()).Str("trigger", trigger).Msg("purchaser priced by wholesale extension, reconciliation skipped")
		obs.CountReconciliation(trigger, report.Outcome)
		return report, nil
	}

	var fixes []LineCorrection
	for i := range o.Lines {
		l := &o.Lines[i]
		if !l.Meta.DiscountApplied || !l.Meta.OriginalPrice.Valid || l.Meta.DiscountRole == "" || l.Qty <= 0 {
			continue
		}
		report.Checked++
		role := l.Meta.DiscountRole
		if !slices.Contains(elig.Roles, role) {
			report.Skipped++
			continue
		}
		res := r.Quoter.Quote(ctx, reconcilePoint, l.ProductID, []string{role})
		if !res.Discounted() {
			report.Skipped++
			continue
		}
		original := l.Meta.OriginalPrice.Decimal
		expected := pricing.ApplyDiscount(original, res.Percent)
		persisted := l.UnitPrice()
		if pricing.WithinTolerance(expected, persisted, r.tolerance()) {
			continue
		}
		fix := r.correct(l, expected)
		fixes = append(fixes, fix)
		report.Corrections = append(report.Corrections, Correction{
			LineID:    l.ID,
			ProductID: l.ProductID,
			Role:      role,
			Original:  original,
			Persisted: persisted,
			Expected:  expected,
			Percent:   res.Percent,
			Trigger:   trigger,
		})
	}

	if len(fixes) == 0 {
		report.Outcome = OutcomePassed
		r.emit(ctx, events.TopicValidationPassed, orderID, map[string]any{
			"trigger": trigger,
			"checked": report.Checked,
		})
		obs.CountReconciliation(trigger, report.Outcome)
		return report, nil
	}

	totals := TotalsOf(o.Lines, r.PricesIncludeTax)
	if err := r.Orders.ApplyCorrections(ctx, orderID, fixes, totals); err != nil {
		obs.CountReconciliation(trigger, "failed")
		return report, fmt.Errorf("persist corrections: %w", err)
	}
	for _, c := range report.Corrections {
		obs.CountCorrection()
		r.Logger.Warn().
			Str("order_id", orderID.String()).
			Int64("line_id", c.LineID).
			Int64("product_id", c.ProductID).
			Str("role", c.Role).
			Str("persisted", c.Persisted.String()).
			Str("expected", c.Expected.String()).
			Str("trigger", trigger).
			Msg("order line price corrected")
		r.emit(ctx, events.TopicLineCorrected, orderID, c)
	}
	report.Outcome = OutcomeCorrected
	obs.CountReconciliation(trigger, report.Outcome)
	return report, nil
}

// correct rewrites l with expected as its unit price and returns the persisted form.
func (r *Reconciler) correct(l *Line, expected decimal.Decimal) LineCorrection {
	total := pricing.Round2(expected.Mul(decimal.NewFromInt(int64(l.Qty))))
	l.Subtotal = total
	l.Total = total
	if r.Tax != nil {
		l.Tax = r.Tax.ComputeTax(total, l.TaxClass)
	}
	l.Meta.DiscountedPrice = decimal.NewNullDecimal(expected)
	return LineCorrection{LineID: l.ID, Subtotal: l.Subtotal, Total: l.Total, Tax: l.Tax, Meta: l.Meta}
}

func (r *Reconciler) emit(ctx context.Context, topic string, orderID uuid.UUID, payload any) {
	if r.Events == nil {
		return
	}
	if _, err := r.Events.Emit(ctx, topic, orderID, payload); err != nil {
		r.Logger.Error().Err(err).Str("topic", topic).Str("order_id", orderID.String()).Msg("emit reconciliation event")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
