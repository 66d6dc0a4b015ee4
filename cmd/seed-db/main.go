package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
)

type productJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	Category        string          `json:"category"`
	Stock           int             `json:"stock"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	Image           string          `json:"image"`
	Images          []string        `json:"images"`
}

type couponJSON struct {
	Code   string          `json:"code"`
	Type   string          `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Active bool            `json:"active"`
}

type options struct {
	databaseURL   string
	productsFile  string
	apiKey        string
	apiKeyPepper  string
	adminEmail    string
	adminPassword string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "path to products JSON file (default: embedded demo catalog)")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.StringVar(&opts.adminEmail, "admin-email", "", "admin account email (or STORE_SEED_ADMIN_EMAIL env)")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin account password (or STORE_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	fromEnv(&opts.databaseURL, "DATABASE_URL")
	fromEnv(&opts.apiKey, "STORE_SEED_API_KEY")
	fromEnv(&opts.apiKeyPepper, "STORE_API_KEY_PEPPER")
	fromEnv(&opts.adminEmail, "STORE_SEED_ADMIN_EMAIL")
	fromEnv(&opts.adminPassword, "STORE_SEED_ADMIN_PASSWORD")

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func fromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL, repository.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAdmin(ctx, pool, opts.adminEmail, opts.adminPassword); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	if err := seedAPIKey(ctx, pool, opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, repo product.Repository, productsFile string) error {
	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, pj := range products {
		p := product.Product(pj)
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}
		if err := repo.Upsert(ctx, &p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo coupon.Repository) error {
	slog.Info("seeding launch coupons")

	var coupons []couponJSON
	if err := json.Unmarshal(db.SeedCoupons, &coupons); err != nil {
		return errors.Wrap(err, "parse coupons JSON")
	}

	for _, cj := range coupons {
		c := coupon.Coupon{
			Code:   cj.Code,
			Type:   coupon.Type(cj.Type),
			Value:  cj.Value,
			Active: cj.Active,
		}
		if err := c.Validate(); err != nil {
			return err
		}
		err := repo.Create(ctx, &c)
		switch {
		case errors.Is(err, coupon.ErrAlreadyExists):
			slog.Info("coupon exists, skipping", slog.String("code", c.Code))
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", c.Code)
		default:
			slog.Info("created coupon", slog.String("code", c.Code), slog.String("type", string(c.Type)))
		}
	}

	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	if email == "" || password == "" {
		slog.Info("admin credentials not set, skipping admin account")
		return nil
	}

	svc := auth.NewService(repository.NewUserRepository(pool), auth.ServiceConfig{})
	u, err := svc.Register(ctx, email, "Administrator", password, auth.RoleAdmin)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		slog.Info("admin account exists, skipping", slog.String("email", auth.NormalizeEmail(email)))
		return nil
	case err != nil:
		return err
	}

	slog.Info("created admin account", slog.String("id", u.ID), slog.String("email", u.Email))
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, key, pepper string) error {
	if key == "" {
		slog.Info("api key not set, skipping api key")
		return nil
	}
	if pepper == "" {
		return errors.New("api key pepper is required to seed an api key")
	}

	keys := auth.NewAPIKeys(repository.NewAPIKeyRepository(pool), []byte(pepper))
	if _, err := keys.Authenticate(ctx, key); err == nil {
		slog.Info("api key exists, skipping")
		return nil
	}

	info, err := keys.Issue(ctx, "Seeded admin key", key, []string{auth.ScopeAdmin})
	if err != nil {
		return err
	}

	slog.Info("created API key", slog.String("id", info.ID), slog.String("name", info.Name))
	return nil
}
