package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/catalog"
	"github.com/noah-isme/toko-rolepricing/internal/common"
	"github.com/noah-isme/toko-rolepricing/internal/hooks"
	"github.com/noah-isme/toko-rolepricing/internal/pricing"
)

type stubReader struct {
	products   map[int64]catalog.Product
	categories map[int64][]int64
	parents    map[int64]int64
	calls      int
}

func (s *stubReader) Product(_ context.Context, id int64) (catalog.Product, error) {
	s.calls++
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s *stubReader) ProductCategories(_ context.Context, id int64) ([]int64, error) {
	s.calls++
	return s.categories[id], nil
}

func (s *stubReader) CategoryParent(_ context.Context, id int64) (int64, bool, error) {
	s.calls++
	p, ok := s.parents[id]
	return p, ok, nil
}

// sessionDiscounter grants pct to any authenticated session.
type sessionDiscounter struct {
	pct    string
	asked  []int64
	points []string
}

func (d *sessionDiscounter) Discount(ctx context.Context, point string, productID int64) pricing.Resolution {
	d.asked = append(d.asked, productID)
	d.points = append(d.points, point)
	if !common.IsAuthenticated(ctx) {
		return pricing.Resolution{}
	}
	return pricing.Resolution{Percent: decimal.RequireFromString(d.pct), Role: "vip"}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newService(t *testing.T, d catalog.Discounter) (*catalog.Service, catalog.Chains) {
	t.Helper()
	reader := &stubReader{products: map[int64]catalog.Product{
		1: {ID: 1, Kind: catalog.KindSimple, Price: dec("100"), Purchasable: true},
		2: {ID: 2, Kind: catalog.KindVariable, Variants: []catalog.Product{
			{ID: 21, ParentID: 2, Kind: catalog.KindVariation, Price: dec("40"), Purchasable: true},
			{ID: 22, ParentID: 2, Kind: catalog.KindVariation, Price: dec("10"), Purchasable: false},
			{ID: 23, ParentID: 2, Kind: catalog.KindVariation, Price: dec("60"), Purchasable: true},
			{ID: 24, ParentID: 2, Kind: catalog.KindVariation, Price: dec("0"), Purchasable: true},
		}},
		21: {ID: 21, ParentID: 2, Kind: catalog.KindVariation, Price: dec("40"), Purchasable: true},
		3:  {ID: 3, Kind: catalog.KindVariable},
	}}
	chains := catalog.NewChains()
	catalog.DiscountFilter{Discounts: d}.Register(chains, "rolepricing", 10)
	return &catalog.Service{Reader: reader, Chains: chains}, chains
}

func authed() context.Context {
	return common.WithSession(context.Background(), common.Session{UserID: "u1", Roles: []string{"vip"}})
}

func TestDisplayPriceSimple(t *testing.T) {
	svc, _ := newService(t, &sessionDiscounter{pct: "10"})

	got, err := svc.DisplayPrice(authed(), 1)
	require.NoError(t, err)
	require.True(t, got.Price.Equal(dec("90")))
	require.True(t, got.RegularPrice.Equal(dec("100")))
	require.True(t, got.Discounted)

	anon, err := svc.DisplayPrice(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, anon.Price.Equal(dec("100")))
	require.False(t, anon.Discounted)
}

func TestEachChainResolvesUnderItsOwnPoint(t *testing.T) {
	d := &sessionDiscounter{pct: "10"}
	svc, _ := newService(t, d)

	for _, id := range []int64{1, 21, 2} {
		_, err := svc.DisplayPrice(authed(), id)
		require.NoError(t, err)
	}
	require.Equal(t, []string{
		string(hooks.PointCatalogPrice),
		string(hooks.PointVariationPrice),
		string(hooks.PointVariablePrice),
	}, d.points)
}

func TestDisplayPriceVariableRange(t *testing.T) {
	d := &sessionDiscounter{pct: "25"}
	svc, _ := newService(t, d)

	got, err := svc.DisplayPrice(authed(), 2)
	require.NoError(t, err)
	require.True(t, got.MinPrice.Equal(dec("30")), "min %s", got.MinPrice)
	require.True(t, got.MaxPrice.Equal(dec("45")), "max %s", got.MaxPrice)
	require.Equal(t, []int64{2}, d.asked)

	empty, err := svc.DisplayPrice(authed(), 3)
	require.NoError(t, err)
	require.True(t, empty.MinPrice.IsZero())
	require.True(t, empty.MaxPrice.IsZero())
	require.False(t, empty.Discounted)
}

func TestDisplayPriceVariationUsesParentCategories(t *testing.T) {
	d := &sessionDiscounter{pct: "50"}
	svc, _ := newService(t, d)

	got, err := svc.DisplayPrice(authed(), 21)
	require.NoError(t, err)
	require.True(t, got.Price.Equal(dec("20")))
	require.Equal(t, []int64{2}, d.asked)
}

func TestDisplayPriceComposesAfterWholesaleHandler(t *testing.T) {
	svc, chains := newService(t, &sessionDiscounter{pct: "10"})
	chains.Price.Add(hooks.Handler[catalog.PriceQuote]{
		ID: "wholesale.price", Owner: "wholesale", Priority: 5,
		Fn: func(_ context.Context, q catalog.PriceQuote) catalog.PriceQuote {
			q.Price = dec("80")
			return q
		},
	})

	got, err := svc.DisplayPrice(authed(), 1)
	require.NoError(t, err)
	require.True(t, got.Price.Equal(dec("72")), "discount composes on the wholesale price, got %s", got.Price)
}

func TestDisplayPriceNotFound(t *testing.T) {
	svc, _ := newService(t, &sessionDiscounter{pct: "10"})
	_, err := svc.DisplayPrice(authed(), 404)
	require.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestPriceHandler(t *testing.T) {
	svc, _ := newService(t, &sessionDiscounter{pct: "10"})
	h := &catalog.Handler{Service: svc}
	r := chi.NewRouter()
	r.Get("/api/v1/products/{id}/price", h.Price)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/1/price", nil)
	req = req.WithContext(authed())
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data catalog.Display `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Data.Price.Equal(dec("90")))

	for path, status := range map[string]int{
		"/api/v1/products/abc/price": http.StatusBadRequest,
		"/api/v1/products/404/price": http.StatusNotFound,
	} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, status, rr.Code, path)
	}
}

func TestCachedReaderServesFromRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &stubReader{
		products:   map[int64]catalog.Product{1: {ID: 1, Kind: catalog.KindSimple, Price: dec("9.99")}},
		categories: map[int64][]int64{1: {4, 5}},
		parents:    map[int64]int64{5: 4, 4: 0},
	}
	reader := &catalog.CachedReader{Source: source, Cache: catalog.NewCache(client, time.Minute), Logger: zerolog.Nop()}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		p, err := reader.Product(ctx, 1)
		require.NoError(t, err)
		require.True(t, p.Price.Equal(dec("9.99")))
		cats, err := reader.ProductCategories(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, []int64{4, 5}, cats)
		parent, found, err := reader.CategoryParent(ctx, 5)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(4), parent)
		_, found, err = reader.CategoryParent(ctx, 99)
		require.NoError(t, err)
		require.False(t, found)
	}
	require.Equal(t, 4, source.calls, "second round is served from the cache")

	_, err = reader.Product(ctx, 404)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
