// Package client is the single point of outbound HTTP communication with the
// marketplace REST backend.
//
// Every request except login and register carries an
// "Authorization: Bearer <token>" header when the configured TokenSource
// yields a token. Failures are returned unchanged as *NetworkError or
// *HTTPError; the client never retries.
package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-client/internal/domain/auth"
	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/product"
	"github.com/xenking/marketplace-client/internal/wire"
)

const maxBodySize = 4 << 20

// TokenSource supplies the session token for outgoing requests. An empty
// token means the request is sent anonymously.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Telemetry options do not
// apply to a client supplied this way.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTokenSource sets where the bearer token is read from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Client) {
		c.lg = lg
	}
}

// WithTracerProvider instruments requests with spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.otelOpts = append(c.otelOpts, otelhttp.WithTracerProvider(tp))
	}
}

// WithMeterProvider instruments requests with metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) {
		c.otelOpts = append(c.otelOpts, otelhttp.WithMeterProvider(mp))
	}
}

// Client calls the marketplace REST API.
type Client struct {
	base     string
	http     *http.Client
	timeout  time.Duration
	tokens   TokenSource
	lg       *zap.Logger
	otelOpts []otelhttp.Option
}

// New creates a Client for the API rooted at baseURL, e.g.
// "http://localhost:3000/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported base url scheme %q", u.Scheme)
	}

	c := &Client{
		base: strings.TrimRight(u.String(), "/"),
		lg:   zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, c.otelOpts...),
		}
	}
	return c, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.base
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	const op = "login"
	payload, err := c.do(ctx, op, http.MethodPost, "/auth/login", wire.Credentials(email, password), false)
	if err != nil {
		return auth.Session{}, err
	}
	s, err := wire.DecodeSession(payload)
	if err != nil {
		return auth.Session{}, errors.Wrap(err, op)
	}
	return s, nil
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, name, email, password string) (auth.Session, error) {
	const op = "register"
	payload, err := c.do(ctx, op, http.MethodPost, "/auth/register", wire.Registration(name, email, password), false)
	if err != nil {
		return auth.Session{}, err
	}
	s, err := wire.DecodeSession(payload)
	if err != nil {
		return auth.Session{}, errors.Wrap(err, op)
	}
	return s, nil
}

// ListProducts returns the product collection.
func (c *Client) ListProducts(ctx context.Context) ([]product.Product, error) {
	const op = "list products"
	payload, err := c.do(ctx, op, http.MethodGet, "/products", nil, true)
	if err != nil {
		return nil, err
	}
	products, err := wire.DecodeProductList(payload)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return products, nil
}

// GetProduct returns a single product. A missing product yields an error
// matching ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id string) (product.Product, error) {
	const op = "get product"
	if err := requireID("product id", id); err != nil {
		return product.Product{}, err
	}
	payload, err := c.do(ctx, op, http.MethodGet, "/products/"+url.PathEscape(id), nil, true)
	if err != nil {
		return product.Product{}, err
	}
	p, err := wire.DecodeProductPayload(payload)
	if err != nil {
		return product.Product{}, errors.Wrap(err, op)
	}
	return p, nil
}

// GetCart returns the authenticated user's cart lines.
func (c *Client) GetCart(ctx context.Context) ([]cart.Line, error) {
	const op = "get cart"
	payload, err := c.do(ctx, op, http.MethodGet, "/cart", nil, true)
	if err != nil {
		return nil, err
	}
	lines, err := wire.DecodeCartPayload(payload)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return lines, nil
}

// AddCartItem asks the server to add quantity units of a product. Merge
// semantics are the server's.
func (c *Client) AddCartItem(ctx context.Context, productID string, quantity int) error {
	if err := requireID("product id", productID); err != nil {
		return err
	}
	_, err := c.do(ctx, "add cart item", http.MethodPost, "/cart", wire.CartItem(productID, quantity), true)
	return err
}

// UpdateCartItem sets the absolute quantity of a cart line. The quantity is
// forwarded as given.
func (c *Client) UpdateCartItem(ctx context.Context, productID string, quantity int) error {
	if err := requireID("product id", productID); err != nil {
		return err
	}
	_, err := c.do(ctx, "update cart item", http.MethodPut, "/cart", wire.CartItem(productID, quantity), true)
	return err
}

// RemoveCartItem deletes a cart line.
func (c *Client) RemoveCartItem(ctx context.Context, productID string) error {
	if err := requireID("product id", productID); err != nil {
		return err
	}
	_, err := c.do(ctx, "remove cart item", http.MethodDelete, "/cart/"+url.PathEscape(productID), nil, true)
	return err
}

// do sends one request and returns the unwrapped success payload.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, withToken bool) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.New().String()
	req.Header.Set("X-Request-ID", reqID)

	if withToken && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "read token")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	lg := c.lg.With(
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", reqID),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		lg.Debug("Request failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: errors.Wrap(err, "read body")}
	}
	lg.Debug("Request done",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    wire.ErrorMessage(data),
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	payload, err := wire.Unwrap(data)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return payload, nil
}

func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	return nil
}
