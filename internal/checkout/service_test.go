package checkout_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/cart"
	"github.com/noah-isme/toko-rolepricing/internal/catalog"
	"github.com/noah-isme/toko-rolepricing/internal/checkout"
	"github.com/noah-isme/toko-rolepricing/internal/events"
	"github.com/noah-isme/toko-rolepricing/internal/hooks"
	"github.com/noah-isme/toko-rolepricing/internal/order"
	"github.com/noah-isme/toko-rolepricing/internal/pricing"
	"github.com/noah-isme/toko-rolepricing/internal/tax"
)

const cartID = "0b7e3f0e-2a52-4b1c-9a55-3c1de0d1a001"

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type products map[int64]catalog.Product

func (p products) Product(_ context.Context, id int64) (catalog.Product, error) {
	if v, ok := p[id]; ok {
		return v, nil
	}
	return catalog.Product{}, catalog.ErrNotFound
}

type percentDiscounter map[int64]string

func (d percentDiscounter) Discount(_ context.Context, _ string, productID int64) pricing.Resolution {
	if v, ok := d[productID]; ok {
		return pricing.Resolution{Percent: dec(v), Role: "vip"}
	}
	return pricing.Resolution{Percent: decimal.Zero}
}

type memOrders struct {
	created []order.Order
}

func (m *memOrders) Create(_ context.Context, o order.Order) (order.Order, error) {
	for i := range o.Lines {
		o.Lines[i].ID = int64(len(m.created)*100 + i + 1)
	}
	m.created = append(m.created, o)
	return o, nil
}

func (m *memOrders) Get(_ context.Context, id uuid.UUID) (order.Order, error) {
	for _, o := range m.created {
		if o.ID == id {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (m *memOrders) SetStatus(context.Context, uuid.UUID, order.Status) (order.Status, error) {
	return "", nil
}

func (m *memOrders) ApplyCorrections(context.Context, uuid.UUID, []order.LineCorrection, order.Totals) error {
	return nil
}

type recordingEmitter struct{ topics []string }

func (r *recordingEmitter) Emit(_ context.Context, topic string, id uuid.UUID, _ any) (events.Event, error) {
	r.topics = append(r.topics, topic)
	return events.Event{Topic: topic, AggregateID: id}, nil
}

type recordingEnqueuer struct{ orders []uuid.UUID }

func (r *recordingEnqueuer) EnqueueReconcile(_ context.Context, id uuid.UUID, _ string) error {
	r.orders = append(r.orders, id)
	return nil
}

type fixture struct {
	carts    *cart.Service
	discount percentDiscounter
	orders   *memOrders
	events   *recordingEmitter
	enqueue  *recordingEnqueuer
	svc      *checkout.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rates := tax.Rates{DefaultBPS: 1000}
	f := &fixture{
		discount: percentDiscounter{1: "10"},
		orders:   &memOrders{},
		events:   &recordingEmitter{},
		enqueue:  &recordingEnqueuer{},
	}
	f.carts = &cart.Service{
		Store: cart.NewRedisStore(client),
		Products: products{
			1: {ID: 1, Name: "Kettle", Kind: catalog.KindSimple, Price: dec("100"), Purchasable: true},
			2: {ID: 2, Name: "Filter", Kind: catalog.KindSimple, Price: dec("7.5"), Purchasable: true},
		},
		Discounts: f.discount,
		Chain:     hooks.NewChain[*cart.Cart](hooks.PointCartTotals),
		Tax:       rates,
	}
	f.carts.RegisterDiscounts("rolepricing", 10)
	f.svc = &checkout.Service{
		Carts:     f.carts,
		Orders:    f.orders,
		Tax:       rates,
		Events:    f.events,
		Reconcile: f.enqueue,
		Now:       func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) },
	}
	return f
}

func TestCheckoutStampsResolvedPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.carts.AddLine(ctx, cartID, "u1", 1, 2)
	require.NoError(t, err)
	_, err = f.carts.AddLine(ctx, cartID, "u1", 2, 1)
	require.NoError(t, err)

	o, err := f.svc.Create(ctx, "u1", checkout.Input{CartID: cartID})
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, o.Status)
	require.Len(t, o.Lines, 2)

	kettle := o.Lines[0]
	require.True(t, kettle.Subtotal.Equal(dec("180")))
	require.True(t, kettle.Total.Equal(dec("180")))
	require.True(t, kettle.Tax.Equal(dec("18")))
	require.True(t, kettle.Meta.DiscountApplied)
	require.Equal(t, "vip", kettle.Meta.DiscountRole)
	require.True(t, kettle.Meta.OriginalPrice.Decimal.Equal(dec("100")))
	require.True(t, kettle.Meta.DiscountedPrice.Decimal.Equal(dec("90")))

	filter := o.Lines[1]
	require.False(t, filter.Meta.DiscountApplied)
	require.False(t, filter.Meta.DiscountedPrice.Valid)
	require.True(t, filter.Meta.OriginalPrice.Decimal.Equal(dec("7.5")))

	require.True(t, o.Subtotal.Equal(dec("187.5")))
	require.True(t, o.DiscountTotal.Equal(dec("20")))
	require.True(t, o.Tax.Equal(dec("18.75")))
	require.True(t, o.Total.Equal(dec("206.25")))

	require.Equal(t, []string{events.TopicOrderCreated}, f.events.topics)
	require.Equal(t, []uuid.UUID{o.ID}, f.enqueue.orders)

	c, err := f.carts.Get(ctx, cartID, "u1")
	require.NoError(t, err)
	require.Empty(t, c.Lines, "cart is cleared after checkout")
}

func TestCheckoutRepricesWithCurrentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.carts.AddLine(ctx, cartID, "u1", 1, 1)
	require.NoError(t, err)
	f.discount[1] = "20"

	o, err := f.svc.Create(ctx, "u1", checkout.Input{CartID: cartID})
	require.NoError(t, err)
	require.True(t, o.Lines[0].Total.Equal(dec("80")))
	require.True(t, o.Lines[0].Meta.OriginalPrice.Decimal.Equal(dec("100")))
}

func TestCheckoutWithoutDiscountsSkipsReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.carts.AddLine(ctx, cartID, "u1", 2, 3)
	require.NoError(t, err)

	o, err := f.svc.Create(ctx, "u1", checkout.Input{CartID: cartID})
	require.NoError(t, err)
	require.False(t, order.HasDiscounts(o))
	require.Empty(t, f.enqueue.orders)
}

func TestCheckoutErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "u1", checkout.Input{CartID: cartID})
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	_, err = f.svc.Create(ctx, "u1", checkout.Input{})
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	_, err = f.carts.AddLine(ctx, cartID, "u1", 1, 1)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "u2", checkout.Input{CartID: cartID})
	require.ErrorIs(t, err, cart.ErrNotFound)
	require.Empty(t, f.orders.created)
}
