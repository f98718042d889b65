// Package app wires the client components and the stub backend from a
// Config.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-client/internal/cartstate"
	"github.com/xenking/marketplace-client/internal/client"
	"github.com/xenking/marketplace-client/internal/session"
	"github.com/xenking/marketplace-client/internal/storage"
	"github.com/xenking/marketplace-client/internal/stubserver"
	"github.com/xenking/marketplace-client/pkg/health"
	"github.com/xenking/marketplace-client/pkg/httpmiddleware"
)

// Telemetry provides the tracer and meter providers, see
// github.com/go-faster/sdk/app.Telemetry.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Client is the running marketplace client: device store, API client,
// authentication state and cart state.
type Client struct {
	Store   *storage.SQLite
	API     *client.Client
	Session *session.Manager
	Cart    *cartstate.State

	lg *zap.Logger
}

// NewClient opens the device store and loads the session and the cart of
// the current authentication status. Close releases the store.
func NewClient(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) (*Client, error) {
	store, err := storage.OpenSQLite(ctx, cfg.StatePath)
	if err != nil {
		return nil, errors.Wrap(err, "open state")
	}

	api, err := client.New(cfg.APIURL,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithTokenSource(session.StoreTokens{Store: store}),
		client.WithLogger(lg.Named("api")),
		client.WithTracerProvider(m.TracerProvider()),
		client.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "create api client")
	}

	cs, err := cartstate.New(store, api,
		cartstate.WithLogger(lg.Named("cart")),
		cartstate.WithTracerProvider(m.TracerProvider()),
		cartstate.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "create cart state")
	}

	sm := session.NewManager(store, api, lg.Named("session"))
	sm.Subscribe(cs.SetAuthenticated)

	authenticated, err := sm.IsAuthenticated(ctx)
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "read session")
	}
	cs.SetAuthenticated(ctx, authenticated)

	lg.Debug("Client ready",
		zap.String("api", api.BaseURL()),
		zap.String("state", store.Path()),
		zap.Bool("authenticated", authenticated),
	)
	return &Client{Store: store, API: api, Session: sm, Cart: cs, lg: lg}, nil
}

// Health returns probes for the device store and the API.
func (c *Client) Health() *health.Health {
	h := health.New()
	h.AddLivenessCheck("state", time.Second, health.PingCheck(c.Store))
	h.AddReadinessCheck("api", 5*time.Second, func(ctx context.Context) error {
		_, err := c.API.ListProducts(ctx)
		return err
	})
	h.SetReady(true)
	return h
}

// Close releases the device store.
func (c *Client) Close() error {
	return c.Store.Close()
}

// NewStub builds the stub backend from cfg.Stub.
func NewStub(ctx context.Context, lg *zap.Logger, cfg StubConfig) (*stubserver.Server, error) {
	sc := stubserver.Config{
		Secret:        []byte(cfg.Secret),
		TokenTTL:      cfg.TokenTTL,
		CORSOrigins:   cfg.CORSOrigins,
		AuthRateLimit: cfg.AuthRateLimit,
	}
	if cfg.Secret == "" {
		lg.Warn("No token secret configured, sessions end when the stub restarts")
		sc.Secret = []byte(uuid.NewString())
	}
	if cfg.Catalog != "" {
		products, err := stubserver.LoadCatalog(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		sc.Catalog = products
	}
	if cfg.DemoEmail != "" {
		sc.Users = append(sc.Users, stubserver.SeedUser{
			Name:     "Demo",
			Email:    cfg.DemoEmail,
			Password: cfg.DemoPassword,
		})
	}
	return stubserver.New(ctx, sc, lg)
}

// RunStub serves the stub backend until ctx is done, then drains and shuts
// down gracefully.
func RunStub(ctx context.Context, lg *zap.Logger, m Telemetry, cfg StubConfig) error {
	stub, err := NewStub(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "create stub backend")
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: stub.Handler(
			httpmiddleware.Instrument("kart-stub", m.TracerProvider(), m.MeterProvider()),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		stub.Health().SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
