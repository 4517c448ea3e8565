// Package app wires the storefront services into an HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/wallet"
	"github.com/xenking/storefront/internal/gateway/razorpay"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/idempotency"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	store, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	srv, err := newServer(ctx, lg, m, cfg, store)
	if err != nil {
		return err
	}
	defer srv.close()

	srv.health.Start(ctx, 10*time.Second)
	srv.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Gateway.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		srv.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// server is the assembled HTTP stack. Health checks are registered but not
// started.
type server struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newServer(
	ctx context.Context,
	lg *zap.Logger,
	t httpmiddleware.Telemetry,
	cfg *Config,
	store *backend,
) (_ *server, rerr error) {
	srv := &server{health: health.New()}
	defer func() {
		if rerr != nil {
			srv.close()
		}
	}()

	if store.ping != nil {
		srv.health.Register(health.Readiness, "postgres", store.ping, health.WithTimeout(5*time.Second))
	}
	srv.health.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))
	srv.health.Register(health.Liveness, "gc_pause", health.GCMaxPauseCheck(time.Second))

	var idem idempotency.Store = idempotency.NewMemory(cfg.Idempotency.TTL)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		srv.closers = append(srv.closers, func() { _ = rdb.Close() })
		srv.health.Register(health.Readiness, "redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, health.WithTimeout(2*time.Second))
		idem = idempotency.NewRedis(rdb, cfg.Idempotency.TTL)
	}

	// Domain services.
	engine := pricing.NewEngine(store.products, store.offers)
	coupons := coupon.NewService(store.coupons)
	orderOpts := []order.Option{
		order.WithNotifier(notify.LogSender{}),
		order.WithTracerProvider(t.TracerProvider()),
		order.WithMeterProvider(t.MeterProvider()),
	}
	if cfg.Gateway.KeyID != "" {
		gw, err := razorpay.New(cfg.Gateway.KeyID, cfg.Gateway.KeySecret)
		if err != nil {
			return nil, errors.Wrap(err, "create payment gateway")
		}
		orderOpts = append(orderOpts, order.WithGateway(gw, order.GatewayConfig{
			Currency: cfg.Gateway.Currency,
			KeyID:    cfg.Gateway.KeyID,
			Secret:   cfg.Gateway.KeySecret,
			Timeout:  cfg.Gateway.Timeout,
		}))
	} else {
		lg.Warn("Payment gateway is not configured, gateway payments are disabled")
	}
	orderService, err := order.NewService(store.orders, store.carts, store.products, engine, coupons, orderOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	h := handler.New(
		handler.Config{
			APIKeyPepper: []byte(cfg.APIKeyPepper),
			Authenticated: []httpmiddleware.Middleware{
				httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
					Max:    cfg.RateLimit.Max,
					Window: cfg.RateLimit.Window,
				}),
			},
		},
		cart.NewService(store.carts, store.products, engine),
		coupons,
		orderService,
		wallet.NewService(store.wallets),
		store.apikeys,
		idem,
	)

	mux := http.NewServeMux()
	mux.Handle("/livez", srv.health.Handler(health.Liveness))
	mux.Handle("/readyz", srv.health.Handler(health.Readiness))
	mux.Handle("/", h.Router(httpmiddleware.LogRequests()))

	srv.handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			AllowHeaders: []string{
				"Content-Type", "api_key", "Idempotency-Key", "X-User-ID", "X-User-Role", httpmiddleware.HeaderRequestID,
			},
			ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument("storefront-api", t),
	)
	return srv, nil
}
