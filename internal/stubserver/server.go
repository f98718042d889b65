// Package stubserver is an in-memory implementation of the marketplace REST
// backend: catalog, accounts with bearer tokens, and per-user carts. It
// backs the integration tests and the "kart stub" command.
package stubserver

import (
	"context"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/marketplace-client/internal/domain/auth"
	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/product"
	"github.com/xenking/marketplace-client/internal/wire"
	"github.com/xenking/marketplace-client/pkg/health"
	"github.com/xenking/marketplace-client/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// Config configures a Server.
type Config struct {
	// Secret signs session tokens. Required.
	Secret []byte
	// TokenTTL is the session lifetime, 24h when zero.
	TokenTTL time.Duration
	// Catalog is served as is, DefaultCatalog when nil.
	Catalog []product.Product
	// Users are registered at startup.
	Users []SeedUser
	// CORSOrigins lists allowed browser origins, any when empty.
	CORSOrigins []string
	// AuthRateLimit caps login and register attempts per client IP and
	// minute. Zero disables the limit.
	AuthRateLimit int
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// Server is the stub backend.
type Server struct {
	lg       *zap.Logger
	cfg      Config
	accounts *accounts
	tokens   tokens
	health   *health.Health

	products []product.Product
	byID     map[string]product.Product

	mu    sync.Mutex
	carts map[string][]cart.Line // by user id
}

// New validates cfg and registers the seed users.
func New(ctx context.Context, cfg Config, lg *zap.Logger) (*Server, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := validateCatalog(cfg.Catalog); err != nil {
		return nil, errors.Wrap(err, "catalog")
	}

	s := &Server{
		lg:       lg,
		cfg:      cfg,
		accounts: newAccounts(cfg.BcryptCost),
		tokens:   tokens{secret: cfg.Secret, ttl: cfg.TokenTTL, now: cfg.Now},
		health:   health.New(),
		products: slices.Clone(cfg.Catalog),
		byID:     make(map[string]product.Product, len(cfg.Catalog)),
		carts:    make(map[string][]cart.Line),
	}
	for _, p := range s.products {
		s.byID[p.ID] = p
	}
	if err := s.accounts.seed(ctx, cfg.Users); err != nil {
		return nil, errors.Wrap(err, "seed users")
	}

	s.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	s.health.AddReadinessCheck("catalog", time.Second, func(context.Context) error {
		if len(s.products) == 0 {
			return errors.New("catalog is empty")
		}
		return nil
	})
	s.health.SetReady(true)

	lg.Info("Stub backend ready",
		zap.Int("products", len(s.products)),
		zap.Int("users", len(cfg.Users)),
	)
	return s, nil
}

// Health returns the probe state, for draining on shutdown.
func (s *Server) Health() *health.Health {
	return s.health
}

// Handler returns the full HTTP handler. Extra middlewares wrap the
// built-in chain.
func (s *Server) Handler(extra ...httpmiddleware.Middleware) http.Handler {
	limited := httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
		Max:    s.cfg.AuthRateLimit,
		Window: time.Minute,
		Now:    s.cfg.Now,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", s.health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", s.health.ReadyEndpoint)

	mux.Handle("POST /api/auth/login", limited(http.HandlerFunc(s.login)))
	mux.Handle("POST /api/auth/register", limited(http.HandlerFunc(s.register)))
	mux.HandleFunc("GET /api/products", s.listProducts)
	mux.HandleFunc("GET /api/products/{id}", s.getProduct)
	mux.HandleFunc("GET /api/cart", s.authorized(s.getCart))
	mux.HandleFunc("POST /api/cart", s.authorized(s.addToCart))
	mux.HandleFunc("PUT /api/cart", s.authorized(s.updateCart))
	mux.HandleFunc("DELETE /api/cart/{productId}", s.authorized(s.removeFromCart))
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})

	chain := append(slices.Clone(extra),
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(s.lg),
		httpmiddleware.LogRequests(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowHeaders: []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
			MaxAge:       86400,
		}),
	)
	return httpmiddleware.Wrap(mux, chain...)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	_, email, password, err := wire.DecodeRegistration(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	u, err := s.accounts.authenticate(email, password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.writeSession(w, r, http.StatusOK, "login successful", u)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	name, email, password, err := wire.DecodeRegistration(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	switch {
	case strings.TrimSpace(name) == "":
		writeError(w, http.StatusBadRequest, "name is required")
		return
	case !strings.Contains(email, "@"):
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	case len(password) < 6:
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	u, err := s.accounts.register(name, email, password)
	if errors.Is(err, errUserExists) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("User registered", zap.String("user_id", u.ID))
	s.writeSession(w, r, http.StatusCreated, "registration successful", u)
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, msg string, u auth.User) {
	token, err := s.tokens.issue(u)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeData(w, status, msg, func(e *jx.Encoder) {
		wire.EncodeSession(e, auth.Session{Token: token, User: u})
	})
}

func (s *Server) listProducts(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, "", func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("products")
		e.ArrStart()
		for _, p := range s.products {
			wire.EncodeProduct(e, p)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.byID[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeData(w, http.StatusOK, "", func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("product")
		wire.EncodeProduct(e, p)
		e.ObjEnd()
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, u auth.User)

// authorized resolves the bearer token to a user or answers 401.
func (s *Server) authorized(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "not authorized, no token")
			return
		}
		id, err := s.tokens.verify(raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "not authorized, token failed")
			return
		}
		u, ok := s.accounts.byUserID(id)
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authorized, user not found")
			return
		}
		next(w, r, u)
	}
}

func (s *Server) getCart(w http.ResponseWriter, _ *http.Request, u auth.User) {
	s.mu.Lock()
	lines := s.carts[u.ID]
	s.mu.Unlock()
	s.writeCart(w, "", lines)
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request, u auth.User) {
	id, qty, ok := s.readItem(w, r)
	if !ok {
		return
	}
	p, ok := s.byID[id]
	if !ok {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	s.mu.Lock()
	lines := s.carts[u.ID]
	inCart := 0
	if l, found := (cart.Cart{Lines: lines}).Find(id); found {
		inCart = l.Quantity
	}
	if inCart+qty > p.Stock {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "insufficient stock")
		return
	}
	lines = cart.AddLine(lines, p, qty)
	s.carts[u.ID] = lines
	s.mu.Unlock()

	s.writeCart(w, "item added to cart", lines)
}

func (s *Server) updateCart(w http.ResponseWriter, r *http.Request, u auth.User) {
	id, qty, ok := s.readItem(w, r)
	if !ok {
		return
	}
	p, ok := s.byID[id]
	if !ok {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if qty > p.Stock {
		writeError(w, http.StatusBadRequest, "insufficient stock")
		return
	}

	s.mu.Lock()
	current := s.carts[u.ID]
	if _, found := (cart.Cart{Lines: current}).Find(id); !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "item not in cart")
		return
	}
	lines := cart.SetQuantity(current, id, qty)
	s.carts[u.ID] = lines
	s.mu.Unlock()

	s.writeCart(w, "cart updated", lines)
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request, u auth.User) {
	id := r.PathValue("productId")

	s.mu.Lock()
	lines := cart.RemoveLine(s.carts[u.ID], id)
	s.carts[u.ID] = lines
	s.mu.Unlock()

	s.writeCart(w, "item removed from cart", lines)
}

// readItem decodes a cart item body and rejects quantities below one.
func (s *Server) readItem(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return "", 0, false
	}
	id, qty, err := wire.DecodeCartItem(body)
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, "productId and quantity are required")
		return "", 0, false
	}
	if qty < 1 {
		writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return "", 0, false
	}
	return id, qty, true
}

// writeCart answers with {"items":[...]}, each product refreshed from the
// catalog.
func (s *Server) writeCart(w http.ResponseWriter, msg string, lines []cart.Line) {
	writeData(w, http.StatusOK, msg, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		current := make([]cart.Line, 0, len(lines))
		for _, l := range lines {
			if p, ok := s.byID[l.Product.ID]; ok {
				l.Product = p
			}
			current = append(current, l)
		}
		wire.EncodeLines(e, current)
		e.ObjEnd()
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return nil, false
	}
	return body, true
}

// writeData writes {"success":true,"message":msg,"data":...}.
func writeData(w http.ResponseWriter, status int, msg string, data func(e *jx.Encoder)) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	if msg != "" {
		e.FieldStart("message")
		e.Str(msg)
	}
	e.FieldStart("data")
	data(&e)
	e.ObjEnd()
	write(w, status, e.Bytes())
}

// writeError writes {"success":false,"message":msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	write(w, status, e.Bytes())
}

func write(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
