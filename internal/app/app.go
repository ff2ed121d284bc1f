package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/catalog"
	"github.com/xenking/astroplay-pos/internal/domain/checkout"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
	"github.com/xenking/astroplay-pos/internal/handler"
	"github.com/xenking/astroplay-pos/internal/storage/docstore"
	"github.com/xenking/astroplay-pos/internal/storage/memory"
	"github.com/xenking/astroplay-pos/internal/storage/postgres"
	"github.com/xenking/astroplay-pos/internal/storage/redis"
	"github.com/xenking/astroplay-pos/pkg/health"
	"github.com/xenking/astroplay-pos/pkg/httpmiddleware"
)

const serviceName = "astroplay-pos"

// backend is the catalog store selected by configuration.
type backend struct {
	products product.Repository
	authn    auth.Authenticator
	images   handler.ImageSource
	pinger   health.Pinger
	ledger   checkout.Ledger // nil when the store keeps no sales history
	close    func()
}

func openDocstore(cfg *Config, m *app.Telemetry) (*backend, error) {
	httpClient := &http.Client{
		Timeout: cfg.Docstore.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}
	client, err := docstore.New(docstore.Config{
		BaseURL:  cfg.Docstore.URL,
		Products: cfg.Docstore.Collection,
		Users:    cfg.Docstore.Users,
		Token:    cfg.Docstore.Token,
		Timeout:  cfg.Docstore.Timeout,
	}, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "create docstore client")
	}
	return &backend{
		products: client.Products(),
		authn:    client,
		pinger:   client,
		close:    func() {},
	}, nil
}

func openPostgres(ctx context.Context, cfg *Config) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	products := postgres.NewProductRepository(pool, cfg.filesURL())
	return &backend{
		products: products,
		authn:    postgres.NewUserRepository(pool),
		images:   products,
		pinger:   pool,
		ledger:   postgres.NewSaleRepository(pool),
		close:    pool.Close,
	}, nil
}

// loadCatalog retries the first reload until it succeeds, then refreshes the
// snapshot every cfg.RefreshEvery when that is set.
func loadCatalog(ctx context.Context, cat *catalog.Catalog, cfg CatalogConfig) error {
	lg := zctx.From(ctx)
	retry := time.NewTicker(5 * time.Second)
	defer retry.Stop()
	for {
		_, err := cat.Reload(ctx)
		if err == nil {
			lg.Info("Catalog loaded", zap.Int("products", cat.Stats().Products))
			break
		}
		lg.Warn("Catalog load failed, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-retry.C:
		}
	}

	if cfg.RefreshEvery <= 0 {
		return nil
	}
	refresh := time.NewTicker(cfg.RefreshEvery)
	defer refresh.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh.C:
			if _, err := cat.Reload(ctx); err != nil {
				lg.Warn("Catalog refresh failed", zap.Error(err))
			}
		}
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("catalog_backend", cfg.Catalog.Backend),
	)

	var (
		store *backend
		err   error
	)
	switch cfg.Catalog.Backend {
	case BackendPostgres:
		store, err = openPostgres(ctx, cfg)
	default:
		store, err = openDocstore(cfg, m)
	}
	if err != nil {
		return err
	}
	defer store.close()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("catalog_store", 5*time.Second, health.PingCheck(store.pinger))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Sessions.
	var (
		sessions    auth.Store
		memSessions *memory.SessionStore
	)
	if cfg.RedisURL != "" {
		client, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "open redis")
		}
		defer func() { _ = client.Close() }()
		redisStore := redis.NewSessionStore(client)
		healthSvc.AddReadinessCheck("sessions", 2*time.Second, health.PingCheck(redisStore))
		sessions = redisStore
	} else {
		lg.Warn("No Redis configured, sessions are kept in memory")
		memSessions = memory.NewSessionStore()
		sessions = memSessions
	}

	// Domain services.
	cat := catalog.New(store.products, product.ListParams{
		Page:    1,
		PerPage: cfg.Catalog.PerPage,
		Sort:    cfg.Catalog.Sort,
	})
	healthSvc.AddReadinessCheck("catalog", time.Second,
		health.LoadedCheck(cat.LoadedAt, cfg.Catalog.MaxAge),
		health.StartUnhealthy(), health.WithThresholds(1, 1),
	)

	checkoutCfg := checkout.Config{Delay: cfg.Checkout.Delay, Ledger: store.ledger}
	if cfg.Checkout.DecrementStock {
		stock, ok := store.products.(product.StockDecrementer)
		if !ok {
			return errors.Errorf("catalog backend %q cannot decrement stock", cfg.Catalog.Backend)
		}
		checkoutCfg.Stock = stock
	}
	checkoutSvc, err := checkout.NewService(checkoutCfg, m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	authSvc := auth.NewService(store.authn, sessions, auth.TokenConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TTL,
	})
	terminals := pos.NewRegistry()
	sweeper := &sessionSweeper{auth: authSvc, terminals: terminals, memory: memSessions}

	h := handler.New(handler.Config{
		MaxUploadSize:   cfg.Upload.MaxSize,
		CaptureEndpoint: cfg.Upload.CaptureEndpoint,
	}, handler.Deps{
		Auth:      authSvc,
		Catalog:   cat,
		Admin:     catalog.NewAdmin(store.products, cat),
		Terminals: terminals,
		Checkout:  checkoutSvc,
		Images:    store.images,
	})

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h.Routes(
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	))

	baseCtx := context.WithoutCancel(ctx)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loadCatalog(gctx, cat, cfg.Catalog)
	})
	g.Go(func() error {
		return sweeper.run(gctx, cfg.Auth.SweepEvery)
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
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
