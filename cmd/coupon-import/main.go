package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1000
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		typ         string
		value       string
		inactive    bool
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&typ, "type", string(coupon.TypePercent), "coupon type for lines that carry only a code")
	flag.StringVar(&value, "value", "10", "coupon value for lines that carry only a code")
	flag.BoolVar(&inactive, "inactive", false, "import code-only lines as inactive")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and report without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("usage: coupon-import [flags] FILE [FILE...]")
		os.Exit(2)
	}

	v, err := decimal.NewFromString(value)
	if err != nil {
		slog.Error("invalid --value", slog.String("error", err.Error()))
		os.Exit(2)
	}
	def := defaults{typ: coupon.Type(typ), value: v, active: !inactive}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), def, dryRun); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, def defaults, dryRun bool) error {
	slog.Info("parsing coupon files", slog.Int("files", len(files)))

	coupons, err := parseFiles(ctx, files, def)
	if err != nil {
		return errors.Wrap(err, "parse files")
	}

	slog.Info("unique coupons parsed", slog.Int("count", len(coupons)))

	if dryRun || len(coupons) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL, repository.PoolConfig{MaxConns: 4})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, repository.NewCouponRepository(pool), coupons)
}

// parseFiles parses every file concurrently and merges the results. The
// first occurrence of a code wins.
func parseFiles(ctx context.Context, files []string, def defaults) ([]coupon.Coupon, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res, err := parseFile(ctx, path, def, func(line int, err error) {
				slog.Warn("skipping invalid line",
					slog.String("file", path),
					slog.Int("line", line),
					slog.String("error", err.Error()),
				)
			})
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}

			slog.Info("file parsed",
				slog.String("file", path),
				slog.Int("coupons", len(res.coupons)),
				slog.Int("invalid", res.invalid),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(results), nil
}

func merge(results []fileResult) []coupon.Coupon {
	seen := make(map[string]struct{})
	var out []coupon.Coupon
	for _, r := range results {
		for _, c := range r.coupons {
			if _, dup := seen[c.Code]; dup {
				continue
			}
			seen[c.Code] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// writeCoupons creates the coupons that are not stored yet. Stored codes
// are loaded into a bloom filter so only possible duplicates cost a lookup.
func writeCoupons(ctx context.Context, repo coupon.Repository, coupons []coupon.Coupon) error {
	stored, err := repo.Codes(ctx)
	if err != nil {
		return errors.Wrap(err, "list stored codes")
	}

	filter := bloom.NewWithEstimates(uint(max(len(stored), 1)), bloomFPR)
	for _, code := range stored {
		filter.AddString(code)
	}

	slog.Info("writing coupons to database",
		slog.Int("count", len(coupons)),
		slog.Int("stored", len(stored)),
	)

	var created, skipped int
	for i := range coupons {
		c := &coupons[i]
		if filter.TestString(c.Code) {
			if _, err := repo.FindByCode(ctx, c.Code); err == nil {
				skipped++
				continue
			} else if !errors.Is(err, coupon.ErrInvalidCoupon) {
				return errors.Wrapf(err, "lookup coupon %s", c.Code)
			}
		}

		err := repo.Create(ctx, c)
		switch {
		case errors.Is(err, coupon.ErrAlreadyExists):
			skipped++
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", c.Code)
		default:
			created++
		}

		if (i+1)%progressEvery == 0 || i+1 == len(coupons) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(coupons)))
		}
	}

	slog.Info("coupons written", slog.Int("created", created), slog.Int("skipped", skipped))
	return nil
}
