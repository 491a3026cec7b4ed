package main

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/app"
	"github.com/noah-isme/toko-rolepricing/internal/roles"
)

type category struct {
	Name   string
	Parent string
}

type product struct {
	Name      string
	Kind      string
	Parent    string
	Price     string
	TaxClass  string
	Category  string
	Wholesale string
}

var categories = []category{
	{Name: "Electronics"},
	{Name: "Audio", Parent: "Electronics"},
	{Name: "Headphones", Parent: "Audio"},
	{Name: "Fashion"},
	{Name: "Shoes", Parent: "Fashion"},
	{Name: "Books"},
}

var products = []product{
	{Name: "Sony WH-1000XM5", Kind: "simple", Price: "349.00", Category: "Headphones", Wholesale: "280.00"},
	{Name: "Bookshelf Speakers", Kind: "simple", Price: "199.99", Category: "Audio"},
	{Name: "Dell XPS 13", Kind: "simple", Price: "1299.00", Category: "Electronics", Wholesale: "1100.00"},
	{Name: "Air Force 1", Kind: "variable", Category: "Shoes"},
	{Name: "Air Force 1 / 42", Kind: "variation", Parent: "Air Force 1", Price: "110.00"},
	{Name: "Air Force 1 / 44", Kind: "variation", Parent: "Air Force 1", Price: "120.00"},
	{Name: "Go Programming", Kind: "simple", Price: "39.90", TaxClass: "reduced-rate", Category: "Books"},
}

var users = []struct {
	ID    string
	Email string
	Roles []string
}{
	{"admin", "admin@toko.test", []string{"administrator"}},
	{"alice", "alice@toko.test", []string{"customer"}},
	{"vera", "vera@toko.test", []string{"customer", "subscriber"}},
	{"dana", "dana@toko.test", []string{"wholesale_customer"}},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	ctx := context.Background()

	if err := app.RunMigrations(dbURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		catIDs, err := seedCategories(ctx, tx)
		if err != nil {
			return err
		}
		if err := seedProducts(ctx, tx, catIDs); err != nil {
			return err
		}
		return seedUsers(ctx, tx)
	})
	if err != nil {
		log.Fatalf("seed database: %v", err)
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := seedRoles(ctx, redisURL); err != nil {
			log.Fatalf("seed role pricing: %v", err)
		}
	}
	log.Println("Seeding completed successfully!")
}

func seedCategories(ctx context.Context, tx pgx.Tx) (map[string]int64, error) {
	ids := make(map[string]int64, len(categories))
	for _, c := range categories {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO categories (name, parent_id) VALUES ($1, $2) RETURNING id`,
			c.Name, ids[c.Parent],
		).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids[c.Name] = id
	}
	log.Printf("Seeded %d categories", len(ids))
	return ids, nil
}

func seedProducts(ctx context.Context, tx pgx.Tx, catIDs map[string]int64) error {
	ids := make(map[string]int64, len(products))
	for _, p := range products {
		price := decimal.Zero
		if p.Price != "" {
			price = decimal.RequireFromString(p.Price)
		}
		var parent *int64
		if id, ok := ids[p.Parent]; ok {
			parent = &id
		}
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO products (parent_id, name, kind, price, tax_class) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			parent, p.Name, p.Kind, price, p.TaxClass,
		).Scan(&id)
		if err != nil {
			return err
		}
		ids[p.Name] = id
		if catID, ok := catIDs[p.Category]; ok {
			if _, err := tx.Exec(ctx,
				`INSERT INTO product_categories (product_id, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, catID,
			); err != nil {
				return err
			}
		}
		if p.Wholesale != "" {
			if _, err := tx.Exec(ctx,
				`INSERT INTO wholesale_prices (role, product_id, price) VALUES ('wholesale_customer', $1, $2)
				 ON CONFLICT (role, product_id) DO UPDATE SET price = EXCLUDED.price`,
				id, decimal.RequireFromString(p.Wholesale),
			); err != nil {
				return err
			}
		}
	}
	log.Printf("Seeded %d products", len(ids))
	return nil
}

func seedUsers(ctx context.Context, tx pgx.Tx) error {
	for _, u := range users {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, roles) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, roles = EXCLUDED.roles`,
			u.ID, u.Email, u.Roles,
		); err != nil {
			return err
		}
	}
	log.Printf("Seeded %d users", len(users))
	return nil
}

func seedRoles(ctx context.Context, redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer client.Close()

	key := os.Getenv("SETTINGS_KEY")
	if key == "" {
		key = "rolepricing:settings"
	}
	reg := &roles.Registry{
		Store:         roles.NewRedisStore(client, key),
		PlatformRoles: []string{"customer", "subscriber", "shop_manager", "administrator"},
		Validate:      roles.NewValidator(),
		Logger:        zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
	if err := reg.SaveRole(ctx, "customer", roles.Config{Enabled: true, BaseDiscount: decimal.NewFromInt(5)}); err != nil {
		return err
	}
	return reg.SaveRole(ctx, "subscriber", roles.Config{Enabled: true, BaseDiscount: decimal.NewFromInt(10)})
}
