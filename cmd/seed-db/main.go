package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/topup-engine/internal/seed"
	"github.com/xenking/topup-engine/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		seedFile     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/seed.json", "path to rate table seed (JSON, optionally gzipped)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TOPUP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("TOPUP_DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TOPUP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile, pepper string) error {
	slog.Info("reading seed file", slog.String("path", seedFile))

	f, err := seed.Load(seedFile)
	if err != nil {
		return errors.Wrap(err, "load seed")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	st, err := seed.Apply(ctx, f, []byte(pepper), postgres.NewStore(pool))
	if err != nil {
		return errors.Wrap(err, "apply seed")
	}

	slog.Info("seeded rate tables",
		slog.Int("payment_methods", st.PaymentMethods),
		slog.Int("products", st.Products),
		slog.Int("vouchers", st.Vouchers),
		slog.Int("api_keys", st.APIKeys),
	)
	return nil
}
