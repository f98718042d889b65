package stubserver_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/marketplace-client/internal/cartstate"
	"github.com/xenking/marketplace-client/internal/client"
	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/product"
	"github.com/xenking/marketplace-client/internal/session"
	"github.com/xenking/marketplace-client/internal/storage"
	"github.com/xenking/marketplace-client/internal/stubserver"
)

// --- Helpers ---

var testCatalog = []product.Product{
	{ID: "p1", Name: "Mug", Price: decimal.RequireFromString("9.99"), Stock: 10},
	{ID: "p2", Name: "Lamp", Price: decimal.RequireFromString("24.00"), Stock: 1},
	{ID: "p3", Name: "Poster", Price: decimal.RequireFromString("5.00"), Stock: 0},
}

const (
	adaEmail    = "ada@example.com"
	adaPassword = "lovelace"
)

type harness struct {
	srv     *httptest.Server
	store   *storage.Memory
	api     *client.Client
	session *session.Manager
	cart    *cartstate.State
}

func newHarness(t *testing.T, mutate ...func(*stubserver.Config)) *harness {
	t.Helper()
	ctx := context.Background()

	cfg := stubserver.Config{
		Secret:     []byte("test-secret"),
		Catalog:    testCatalog,
		Users:      []stubserver.SeedUser{{Name: "Ada", Email: adaEmail, Password: adaPassword}},
		BcryptCost: bcrypt.MinCost,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	backend, err := stubserver.New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	store := storage.NewMemory()
	api, err := client.New(srv.URL+"/api", client.WithTokenSource(session.StoreTokens{Store: store}))
	require.NoError(t, err)

	sm := session.NewManager(store, api, zap.NewNop())
	cs, err := cartstate.New(store, api)
	require.NoError(t, err)
	sm.Subscribe(cs.SetAuthenticated)

	authenticated, err := sm.IsAuthenticated(ctx)
	require.NoError(t, err)
	cs.SetAuthenticated(ctx, authenticated)

	return &harness{srv: srv, store: store, api: api, session: sm, cart: cs}
}

func requireHTTPError(t *testing.T, err error, status int) *client.HTTPError {
	t.Helper()
	var herr *client.HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, status, herr.StatusCode)
	return herr
}

// --- Tests ---

func TestProducts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	products, err := h.api.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "p1", products[0].ID)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("9.99")))

	p, err := h.api.GetProduct(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", p.Name)

	_, err = h.api.GetProduct(ctx, "missing")
	require.ErrorIs(t, err, client.ErrNotFound)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.session.Login(ctx, adaEmail, "wrong")
	herr := requireHTTPError(t, err, http.StatusUnauthorized)
	assert.Equal(t, "invalid credentials", herr.Message)

	u, err := h.session.Login(ctx, "ADA@example.com ", adaPassword)
	require.NoError(t, err)
	assert.Equal(t, adaEmail, u.Email)
	assert.Equal(t, "Ada", u.Name)

	s, err := h.session.Session(ctx)
	require.NoError(t, err)
	exp, ok := s.ExpiresAt()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, time.Minute)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	u, err := h.session.Register(ctx, "Grace", "grace@example.com", "hopper1")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	_, err = h.api.Register(ctx, "Grace", "grace@example.com", "hopper1")
	requireHTTPError(t, err, http.StatusConflict)

	_, err = h.api.Register(ctx, "Short", "short@example.com", "123")
	requireHTTPError(t, err, http.StatusBadRequest)

	// The new account can log in.
	_, err = h.api.Login(ctx, "grace@example.com", "hopper1")
	require.NoError(t, err)
}

func TestCart_RequiresToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.api.GetCart(context.Background())
	herr := requireHTTPError(t, err, http.StatusUnauthorized)
	assert.True(t, herr.Unauthorized())
}

func TestCart_GuestThenLoginThenLogout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	mug := testCatalog[0]

	c, err := h.cart.AddItem(ctx, mug, 2)
	require.NoError(t, err)
	assert.Equal(t, cart.ModeGuest, c.Mode)
	assert.Equal(t, "19.98", cart.FormatAmount(c.Total()))

	_, err = h.session.Login(ctx, adaEmail, adaPassword)
	require.NoError(t, err)

	// The server cart replaces the guest cart, nothing is merged.
	c = h.cart.Snapshot()
	assert.Equal(t, cart.ModeAuthenticated, c.Mode)
	assert.True(t, c.Empty())

	c, err = h.cart.AddItem(ctx, mug, 1)
	require.NoError(t, err)
	c, err = h.cart.AddItem(ctx, mug, 2)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 3, c.Count())
	assert.Equal(t, "29.97", cart.FormatAmount(c.Total()))

	c, err = h.cart.UpdateQuantity(ctx, "p1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Count())

	// Server state survives a fresh fetch.
	lines, err := h.api.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Mug", lines[0].Product.Name)

	require.NoError(t, h.session.Logout(ctx))
	c = h.cart.Snapshot()
	assert.Equal(t, cart.ModeGuest, c.Mode)
	assert.Equal(t, 2, c.Count())

	// Logging back in restores the server cart.
	_, err = h.session.Login(ctx, adaEmail, adaPassword)
	require.NoError(t, err)
	assert.Equal(t, 5, h.cart.Snapshot().Count())

	c, err = h.cart.RemoveItem(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestCart_ServerRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.session.Login(ctx, adaEmail, adaPassword)
	require.NoError(t, err)

	lamp := testCatalog[1]
	_, err = h.cart.AddItem(ctx, lamp, 1)
	require.NoError(t, err)

	t.Run("InsufficientStock", func(t *testing.T) {
		c, err := h.cart.AddItem(ctx, lamp, 1)
		var cerr *cartstate.Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "add", cerr.Op)
		herr := requireHTTPError(t, err, http.StatusBadRequest)
		assert.Equal(t, "insufficient stock", herr.Message)
		assert.Equal(t, 1, c.Count())
	})
	t.Run("QuantityBelowOneIsForwarded", func(t *testing.T) {
		_, err := h.cart.UpdateQuantity(ctx, "p2", 0)
		herr := requireHTTPError(t, err, http.StatusBadRequest)
		assert.Equal(t, "quantity must be at least 1", herr.Message)
		assert.Equal(t, 1, h.cart.Snapshot().Count())
	})
	t.Run("UnknownProduct", func(t *testing.T) {
		_, err := h.cart.AddItem(ctx, product.Product{ID: "ghost"}, 1)
		require.ErrorIs(t, err, client.ErrNotFound)
	})
	t.Run("UpdateNotInCart", func(t *testing.T) {
		_, err := h.cart.UpdateQuantity(ctx, "p1", 2)
		requireHTTPError(t, err, http.StatusNotFound)
	})
	t.Run("RemoveUnknownIsNoop", func(t *testing.T) {
		c, err := h.cart.RemoveItem(ctx, "ghost")
		require.NoError(t, err)
		assert.Equal(t, 1, c.Count())
	})
}

func TestCart_ClearIsLocal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.session.Login(ctx, adaEmail, adaPassword)
	require.NoError(t, err)

	_, err = h.cart.AddItem(ctx, testCatalog[0], 3)
	require.NoError(t, err)

	c, err := h.cart.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count())

	c, err = h.cart.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Count())
}

func TestExpiredToken(t *testing.T) {
	ctx := context.Background()
	var skew atomic.Int64
	h := newHarness(t, func(cfg *stubserver.Config) {
		cfg.TokenTTL = time.Hour
		cfg.Now = func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }
	})
	_, err := h.session.Login(ctx, adaEmail, adaPassword)
	require.NoError(t, err)

	skew.Store(int64(2 * time.Hour))
	_, err = h.api.GetCart(ctx)
	requireHTTPError(t, err, http.StatusUnauthorized)
}

func TestAuthRateLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(cfg *stubserver.Config) {
		cfg.AuthRateLimit = 2
	})

	for range 2 {
		_, err := h.api.Login(ctx, adaEmail, "wrong")
		requireHTTPError(t, err, http.StatusUnauthorized)
	}
	_, err := h.api.Login(ctx, adaEmail, adaPassword)
	requireHTTPError(t, err, http.StatusTooManyRequests)

	// Other routes are not limited.
	_, err = h.api.ListProducts(ctx)
	require.NoError(t, err)
}

func TestHealthChecksAndUnknownRoutes(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := http.Get(h.srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(h.srv.URL + "/api/orders")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"message":"route not found"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := stubserver.New(ctx, stubserver.Config{}, zap.NewNop())
	require.Error(t, err)

	_, err = stubserver.New(ctx, stubserver.Config{
		Secret:     []byte("s"),
		BcryptCost: bcrypt.MinCost,
		Users: []stubserver.SeedUser{
			{Email: "dup@example.com", Password: "secret"},
			{Email: "DUP@example.com", Password: "secret"},
		},
	}, zap.NewNop())
	require.Error(t, err)
}
