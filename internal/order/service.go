package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-rolepricing/internal/events"
)

// Service manages order lifecycle transitions.
type Service struct {
	Orders    Repository
	Events    Emitter
	Reconcile Enqueuer
	Logger    zerolog.Logger
}

// UpdateStatus moves the order to status. Reaching processing or completed schedules
// reconciliation for orders that carry role discounts.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Order, error) {
	if s == nil || s.Orders == nil {
		return Order{}, errors.New("order service not configured")
	}
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, status) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, status)
	}
	previous, err := s.Orders.SetStatus(ctx, id, status)
	if err != nil {
		return Order{}, err
	}
	o.Status = status

	if s.Events != nil {
		payload := map[string]any{"from": previous, "to": status}
		if _, err := s.Events.Emit(ctx, events.TopicOrderStatusChanged, id, payload); err != nil {
			s.Logger.Error().Err(err).Str("order_id", id.String()).Msg("emit status change")
		}
	}
	if !HasDiscounts(o) {
		return o, nil
	}
	s.Logger.Info().
		Str("order_id", id.String()).
		Str("from", string(previous)).
		Str("to", string(status)).
		Str("discount_total", o.DiscountTotal.String()).
		Msg("discounted order status changed")
	if status.Critical() && s.Reconcile != nil {
		if err := s.Reconcile.EnqueueReconcile(ctx, id, StatusTrigger(status)); err != nil {
			s.Logger.Error().Err(err).Str("order_id", id.String()).Msg("schedule reconciliation")
		}
	}
	return o, nil
}
