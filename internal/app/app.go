package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/topup-engine/internal/domain/auth"
	"github.com/xenking/topup-engine/internal/domain/order"
	"github.com/xenking/topup-engine/internal/domain/paymentmethod"
	"github.com/xenking/topup-engine/internal/domain/product"
	"github.com/xenking/topup-engine/internal/domain/voucher"
	"github.com/xenking/topup-engine/internal/handler"
	"github.com/xenking/topup-engine/internal/seed"
	"github.com/xenking/topup-engine/internal/storage/memory"
	"github.com/xenking/topup-engine/internal/storage/postgres"
	"github.com/xenking/topup-engine/internal/sweeper"
	"github.com/xenking/topup-engine/pkg/health"
	"github.com/xenking/topup-engine/pkg/httpmiddleware"
)

// storage is the set of repositories behind one driver.
type storage struct {
	orders   order.Repository
	vouchers voucher.Repository
	methods  paymentmethod.Repository
	products product.Repository
	apikeys  auth.Repository
	sink     seed.Sink

	ping  func(ctx context.Context) error
	close func()
}

func openStorage(ctx context.Context, cfg *Config) (*storage, error) {
	if cfg.Storage.Driver == DriverMemory {
		s := memory.NewStore()
		return &storage{
			orders:   s.Orders,
			vouchers: s.Vouchers,
			methods:  s.PaymentMethods,
			products: s.Products,
			apikeys:  s.APIKeys,
			sink:     s,
			close:    func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	s := postgres.NewStore(pool)
	return &storage{
		orders:   s.Orders,
		vouchers: s.Vouchers,
		methods:  s.PaymentMethods,
		products: s.Products,
		apikeys:  s.APIKeys,
		sink:     s,
		ping:     pool.Ping,
		close:    pool.Close,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, the expiration
// sweeper and the voucher index, and handles graceful shutdown. It is the
// single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.Duration("payment_window", cfg.Payment.Window),
	)

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	pepper := []byte(cfg.APIKeyPepper)
	if cfg.Storage.SeedFile != "" {
		f, err := seed.Load(cfg.Storage.SeedFile)
		if err != nil {
			return errors.Wrap(err, "load seed")
		}
		st, err := seed.Apply(ctx, f, pepper, store.sink)
		if err != nil {
			return errors.Wrap(err, "apply seed")
		}
		lg.Info("Seed applied",
			zap.String("file", cfg.Storage.SeedFile),
			zap.Int("payment_methods", st.PaymentMethods),
			zap.Int("products", st.Products),
			zap.Int("vouchers", st.Vouchers),
			zap.Int("api_keys", st.APIKeys),
		)
	}

	// Voucher lookups go through the bloom index unless it is disabled.
	var vouchers voucher.Repository = store.vouchers
	var index *voucher.IndexedRepository
	if cfg.VoucherIndex.Refresh > 0 {
		index = voucher.NewIndexedRepository(store.vouchers)
		if err := index.Refresh(ctx); err != nil {
			return errors.Wrap(err, "build voucher index")
		}
		vouchers = index
	}

	orderService := order.NewService(
		store.orders,
		store.methods,
		store.products,
		voucher.NewRepoValidator(vouchers),
		order.Config{
			PaymentWindow: cfg.Payment.Window,
			ProofLimits: order.ProofLimits{
				MinBytes: cfg.Proof.MinBytes,
				MaxBytes: cfg.Proof.MaxBytes,
			},
			SweepBatchSize: cfg.Sweep.BatchSize,
			MeterProvider:  m.MeterProvider(),
		},
	)
	sw := sweeper.New(orderService, sweeper.Config{
		Interval:       cfg.Sweep.Interval,
		TracerProvider: m.TracerProvider(),
	})

	// Health check service.
	healthSvc := health.New()
	if store.ping != nil {
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, store.ping)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.AddLivenessCheck("sweeper", time.Second,
		health.StalenessCheck(sw.LastSuccess, 5*sw.Interval(), 5*sw.Interval()))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	h := handler.NewHandler(handler.Config{MaxProofBytes: int64(cfg.Proof.MaxBytes)}, orderService)
	securityHandler := handler.NewSecurityHandler(store.apikeys, pepper)

	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, securityHandler)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.HeaderAPIKey, handler.HeaderIdempotencyKey},
				ExposeHeaders:    []string{"Location", httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.APIKeyOrIP,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("topup-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sw.Run(gctx)
	})
	if index != nil {
		g.Go(func() error {
			return index.Run(gctx, cfg.VoucherIndex.Refresh)
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
