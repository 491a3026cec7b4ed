package repo_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/toko-rolepricing/internal/catalog"
	"github.com/noah-isme/toko-rolepricing/internal/events"
	"github.com/noah-isme/toko-rolepricing/internal/order"
	"github.com/noah-isme/toko-rolepricing/internal/repo"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// setupDB starts PostgreSQL in a container and applies the migrations.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("integration test: set TEST_INTEGRATION to run")
	}
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("rolepricing_test"),
		postgres.WithUsername("rolepricing"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := repo.NewMigrator(dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate: %v", err)
	}
	_, _ = m.Close()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedCatalog(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO categories (id, name, parent_id) VALUES (1, 'Kitchen', 0), (2, 'Kettles', 1)`,
		`INSERT INTO products (id, name, kind, price, purchasable) VALUES (10, 'Kettle', 'simple', 100, true)`,
		`INSERT INTO products (id, name, kind, price, purchasable) VALUES (20, 'Shirt', 'variable', 0, true)`,
		`INSERT INTO products (id, parent_id, name, kind, price, purchasable) VALUES (21, 20, 'Shirt / M', 'variation', 40, true), (22, 20, 'Shirt / L', 'variation', 45.5, false)`,
		`INSERT INTO product_categories (product_id, category_id) VALUES (10, 2), (10, 1)`,
		`INSERT INTO users (id, roles) VALUES ('u1', ARRAY['vip', 'customer'])`,
		`INSERT INTO wholesale_prices (role, product_id, price) VALUES ('wholesale_customer', 10, 70), ('dealer', 21, 30)`,
	}
	for _, s := range stmts {
		_, err := pool.Exec(ctx, s)
		require.NoError(t, err, s)
	}
}

func TestCatalogRepo(t *testing.T) {
	pool := setupDB(t)
	seedCatalog(t, pool)
	ctx := context.Background()
	r := repo.CatalogRepo{DB: pool}

	p, err := r.Product(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, "Kettle", p.Name)
	require.True(t, p.Price.Equal(dec("100")))

	v, err := r.Product(ctx, 20)
	require.NoError(t, err)
	require.Equal(t, catalog.KindVariable, v.Kind)
	require.Len(t, v.Variants, 2)
	require.Equal(t, int64(20), v.Variants[0].ParentID)
	require.True(t, v.Variants[1].Price.Equal(dec("45.5")))
	require.False(t, v.Variants[1].Purchasable)

	_, err = r.Product(ctx, 999)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	cats, err := r.ProductCategories(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, cats)

	cats, err = r.ProductCategories(ctx, 20)
	require.NoError(t, err)
	require.Empty(t, cats, "uncategorised products resolve to the base discount")

	_, err = r.ProductCategories(ctx, 999)
	require.ErrorIs(t, err, catalog.ErrNotFound, "unknown products resolve to no discount")

	parent, found, err := r.CategoryParent(ctx, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), parent)

	_, found, err = r.CategoryParent(ctx, 404)
	require.NoError(t, err)
	require.False(t, found)
}

func TestUsersAndWholesaleRepos(t *testing.T) {
	pool := setupDB(t)
	seedCatalog(t, pool)
	ctx := context.Background()

	roles, err := repo.UsersRepo{DB: pool}.Roles(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"vip", "customer"}, roles)
	roles, err = repo.UsersRepo{DB: pool}.Roles(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, roles)

	w := repo.WholesalePrices{DB: pool}
	price, ok, err := w.Price(ctx, "wholesale_customer", 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, price.Equal(dec("70")))
	_, ok, err = w.Price(ctx, "dealer", 10)
	require.NoError(t, err)
	require.False(t, ok)
	all, err := w.Roles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"dealer", "wholesale_customer"}, all)
}

func TestOrdersRepoLifecycle(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	r := repo.OrdersRepo{DB: pool}
	now := time.Now().UTC().Truncate(time.Millisecond)

	o := order.Order{
		ID: uuid.New(), UserID: "u1", CartID: "c1", Status: order.StatusPending,
		Subtotal: dec("180"), DiscountTotal: dec("20"), Tax: dec("18"), Total: dec("198"),
		CreatedAt: now, UpdatedAt: now,
		Lines: []order.Line{{
			ProductID: 10, Name: "Kettle", Qty: 2,
			Subtotal: dec("180"), Total: dec("180"), Tax: dec("18"),
			Meta: order.LineMeta{
				OriginalPrice:   decimal.NewNullDecimal(dec("100")),
				DiscountedPrice: decimal.NewNullDecimal(dec("90")),
				DiscountApplied: true,
				DiscountRole:    "vip",
			},
		}},
	}
	created, err := r.Create(ctx, o)
	require.NoError(t, err)
	require.NotZero(t, created.Lines[0].ID)

	got, err := r.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, got.Status)
	require.Len(t, got.Lines, 1)
	require.True(t, got.Lines[0].Meta.DiscountApplied)
	require.True(t, got.Lines[0].Meta.DiscountedPrice.Decimal.Equal(dec("90")))
	require.True(t, order.HasDiscounts(got))

	prev, err := r.SetStatus(ctx, o.ID, order.StatusProcessing)
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, prev)

	fix := order.LineCorrection{
		LineID: created.Lines[0].ID, Subtotal: dec("160"), Total: dec("160"), Tax: dec("16"),
		Meta: created.Lines[0].Meta,
	}
	fix.Meta.DiscountedPrice = decimal.NewNullDecimal(dec("80"))
	totals := order.Totals{Subtotal: dec("160"), DiscountTotal: dec("40"), Tax: dec("16"), Total: dec("176")}
	require.NoError(t, r.ApplyCorrections(ctx, o.ID, []order.LineCorrection{fix}, totals))

	got, err = r.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusProcessing, got.Status)
	require.True(t, got.Total.Equal(dec("176")))
	require.True(t, got.Lines[0].Total.Equal(dec("160")))
	require.True(t, got.Lines[0].Meta.DiscountedPrice.Decimal.Equal(dec("80")))

	bad := fix
	bad.LineID = 9999
	err = r.ApplyCorrections(ctx, o.ID, []order.LineCorrection{bad}, totals)
	require.ErrorIs(t, err, order.ErrNotFound)

	_, err = r.Get(ctx, uuid.New())
	require.ErrorIs(t, err, order.ErrNotFound)
	_, err = r.SetStatus(ctx, uuid.New(), order.StatusCompleted)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestEventsRepo(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	store := repo.EventsRepo{DB: pool}
	bus := &events.Bus{Store: store}

	id := uuid.New()
	_, err := bus.Emit(ctx, events.TopicLineCorrected, id, map[string]any{"lineId": 1})
	require.NoError(t, err)
	_, err = bus.Emit(ctx, events.TopicValidationPassed, id, nil)
	require.NoError(t, err)

	list, err := store.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, events.TopicLineCorrected, list[0].Topic)
	require.JSONEq(t, `{"lineId": 1}`, string(list[0].Payload))
}
