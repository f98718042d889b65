package main

import (
	"bytes"
	"context"
	"net/http/httptest"
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

	appkg "github.com/xenking/marketplace-client/internal/app"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }

func (noopTelemetry) MeterProvider() metric.MeterProvider { return metricnoop.NewMeterProvider() }

func newTestConfig(t *testing.T) appkg.Config {
	t.Helper()
	cfg := appkg.Config{
		StatePath:      filepath.Join(t.TempDir(), "state.db"),
		RequestTimeout: 5 * time.Second,
		Stub: appkg.StubConfig{
			Secret:       "test",
			TokenTTL:     time.Hour,
			DemoEmail:    "demo@example.com",
			DemoPassword: "demo1234",
		},
	}
	stub, err := appkg.NewStub(context.Background(), zap.NewNop(), cfg.Stub)
	require.NoError(t, err)
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)
	cfg.APIURL = srv.URL + "/api"
	return cfg
}

// kart runs one invocation as a separate process would: fresh CLI, state
// reopened from disk.
func kart(t *testing.T, cfg appkg.Config, args ...string) (string, error) {
	t.Helper()
	c := newCLI(zap.NewNop(), noopTelemetry{})
	c.loadConfig = func() (*appkg.Config, error) {
		cp := cfg
		return &cp, nil
	}
	defer c.close()

	var out bytes.Buffer
	cmd := c.root()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProducts(t *testing.T) {
	cfg := newTestConfig(t)

	out, err := kart(t, cfg, "products", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Coffee Mug")
	assert.Contains(t, out, "9.99")
	assert.Contains(t, out, "out of stock")

	out, err = kart(t, cfg, "products", "show", "p-mug", "p-gopl")
	require.NoError(t, err)
	assert.Less(t, bytes.Index([]byte(out), []byte("Coffee Mug")), bytes.Index([]byte(out), []byte("The Go Programming Language")))
	assert.Contains(t, out, "Category: Home")

	_, err = kart(t, cfg, "products", "show", "p-missing")
	require.ErrorContains(t, err, `product "p-missing" not found`)
}

func TestGuestCart(t *testing.T) {
	cfg := newTestConfig(t)

	out, err := kart(t, cfg, "cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart (guest) is empty")

	out, err = kart(t, cfg, "cart", "add", "p-mug")
	require.NoError(t, err)
	assert.Contains(t, out, "Added 1 x Coffee Mug")

	out, err = kart(t, cfg, "cart", "add", "p-mug", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart (guest): 3 items, total 29.97")

	out, err = kart(t, cfg, "cart", "update", "p-mug", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 items, total 9.99")

	out, err = kart(t, cfg, "cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "p-mug")
	assert.Contains(t, out, "Cart (guest): 1 items, total 9.99")

	out, err = kart(t, cfg, "cart", "remove", "p-mug")
	require.NoError(t, err)
	assert.Contains(t, out, "0 items, total 0.00")
}

func TestCartArguments(t *testing.T) {
	cfg := newTestConfig(t)

	for _, tc := range []struct {
		name string
		args []string
		err  string
	}{
		{"ZeroQuantity", []string{"cart", "add", "p-mug", "0"}, "quantity must be at least 1"},
		{"NotANumber", []string{"cart", "update", "p-mug", "two"}, `quantity "two" is not a number`},
		{"OutOfStock", []string{"cart", "add", "p-lamp"}, "Desk Lamp is out of stock"},
		{"UnknownProduct", []string{"cart", "add", "p-missing"}, `product "p-missing" not found`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := kart(t, cfg, tc.args...)
			require.ErrorContains(t, err, tc.err)
		})
	}
}

func TestLoginSwitchesCart(t *testing.T) {
	cfg := newTestConfig(t)

	_, err := kart(t, cfg, "cart", "add", "p-mug", "2")
	require.NoError(t, err)

	out, err := kart(t, cfg, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")

	_, err = kart(t, cfg, "cart", "checkout")
	require.ErrorContains(t, err, "log in to check out")

	out, err = kart(t, cfg, "login", "demo@example.com", "demo1234")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Demo <demo@example.com>")
	assert.Contains(t, out, "Cart (authenticated): 0 items")

	out, err = kart(t, cfg, "cart", "add", "p-gopl")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart (authenticated): 1 items, total 39.99")

	out, err = kart(t, cfg, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Session expires")

	out, err = kart(t, cfg, "cart", "checkout")
	require.NoError(t, err)
	assert.Contains(t, out, "1 items, total 39.99")
	assert.Contains(t, out, "nothing was charged")

	out, err = kart(t, cfg, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart (guest): 2 items, total 19.98")
}

func TestRegister(t *testing.T) {
	cfg := newTestConfig(t)

	out, err := kart(t, cfg, "register", "Ada", "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered and logged in as Ada <ada@example.com>")

	_, err = kart(t, cfg, "login", "ada@example.com", "wrong")
	require.Error(t, err)
}

func TestDoctor(t *testing.T) {
	cfg := newTestConfig(t)

	out, err := kart(t, cfg, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "live   ok")
	assert.Contains(t, out, "ready  ok")

	cfg.APIURL = "http://127.0.0.1:1/api"
	out, err = kart(t, cfg, "doctor")
	require.ErrorContains(t, err, "some checks failed")
	assert.Contains(t, out, "ready  api:")
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg := newTestConfig(t)
	other := filepath.Join(t.TempDir(), "other.db")

	_, err := kart(t, cfg, "--state", other, "cart", "add", "p-mug")
	require.NoError(t, err)

	out, err := kart(t, cfg, "cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "is empty")

	out, err = kart(t, cfg, "--state", other, "cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "1 items")
}
