package app

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-client/internal/domain/cart"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }

func (noopTelemetry) MeterProvider() metric.MeterProvider { return metricnoop.NewMeterProvider() }

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		StatePath:      filepath.Join(t.TempDir(), "state.db"),
		RequestTimeout: 5 * time.Second,
		Stub: StubConfig{
			Secret:       "test",
			TokenTTL:     time.Hour,
			DemoEmail:    "demo@example.com",
			DemoPassword: "demo1234",
		},
	}
}

func startStub(t *testing.T, cfg *Config) {
	t.Helper()
	stub, err := NewStub(context.Background(), zap.NewNop(), cfg.Stub)
	require.NoError(t, err)
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)
	cfg.APIURL = srv.URL + "/api"
}

func TestNewClient_SessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	startStub(t, cfg)

	c, err := NewClient(ctx, zap.NewNop(), noopTelemetry{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, cart.ModeGuest, c.Cart.Snapshot().Mode)

	products, err := c.API.ListProducts(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, products)

	_, err = c.Session.Login(ctx, "demo@example.com", "demo1234")
	require.NoError(t, err)
	_, err = c.Cart.AddItem(ctx, products[0], 2)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// A new process picks up the persisted token and loads the server cart.
	c, err = NewClient(ctx, zap.NewNop(), noopTelemetry{}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	snap := c.Cart.Snapshot()
	assert.Equal(t, cart.ModeAuthenticated, snap.Mode)
	assert.Equal(t, 2, snap.Count())

	u, err := c.Session.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo@example.com", u.Email)
}

func TestNewClient_GuestCartOffline(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.APIURL = "http://127.0.0.1:1/api"

	c, err := NewClient(ctx, zap.NewNop(), noopTelemetry{}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Empty(t, c.Health().Live(ctx))
	assert.Contains(t, c.Health().Ready(ctx), "api")
}

func TestNewClient_InvalidAPIURL(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.APIURL = "ftp://example.com"

	_, err := NewClient(context.Background(), zap.NewNop(), noopTelemetry{}, cfg)
	require.Error(t, err)
}

func TestNewStub_Catalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`products: [{id: x1, name: Widget, price: "2.50", stock: 3}]`), 0o600))

	cfg := newTestConfig(t)
	cfg.Stub.Catalog = path
	startStub(t, cfg)

	c, err := NewClient(context.Background(), zap.NewNop(), noopTelemetry{}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	products, err := c.API.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Widget", products[0].Name)

	cfg.Stub.Catalog = filepath.Join(dir, "missing.yaml")
	_, err = NewStub(context.Background(), zap.NewNop(), cfg.Stub)
	require.Error(t, err)
}
