// Package cartstate reconciles a guest cart kept in the device store and an
// authenticated cart kept on the server behind one interface.
package cartstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/product"
	"github.com/xenking/marketplace-client/internal/storage"
)

// ErrModeChanged is returned by an operation whose result was discarded
// because the authentication status changed while it was in flight.
var ErrModeChanged = errors.New("cart mode changed")

// Error describes a failed cart operation.
type Error struct {
	Op   string
	Mode cart.Mode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cart %s (%s): %s", e.Op, e.Mode, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures a State.
type Option func(s *State)

// WithLogger sets the logger failures are reported to.
func WithLogger(lg *zap.Logger) Option {
	return func(s *State) {
		s.lg = lg
	}
}

// WithTracerProvider sets the provider of the per-operation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *State) {
		s.tracer = tp.Tracer("github.com/xenking/marketplace-client/internal/cartstate")
	}
}

// WithMeterProvider sets the provider of the mutation counter.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *State) {
		s.meter = mp.Meter("github.com/xenking/marketplace-client/internal/cartstate")
	}
}

// State is the cart of the running client.
//
// Mutations and refreshes run one at a time. A call waiting for its turn
// gives up when its context is done. Switching the authentication status
// does not wait: it replaces the mode at once and any operation issued
// against the previous mode, running or still queued, fails with
// ErrModeChanged and leaves the new mode's cart untouched.
type State struct {
	store storage.Store
	api   RemoteCart

	lg        *zap.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	mutations metric.Int64Counter

	sem *semaphore.Weighted

	mu   sync.RWMutex
	mode mode
	gen  uint64
	// loaded is false until lines hold the cart of the current mode.
	loaded  bool
	version uint64
	lines   []cart.Line
	loading int
}

// New creates a State in guest mode with an empty cart. Call
// SetAuthenticated to load the cart of the current session.
func New(store storage.Store, api RemoteCart, opts ...Option) (*State, error) {
	s := &State{
		store:  store,
		api:    api,
		lg:     zap.NewNop(),
		tracer: tracenoop.NewTracerProvider().Tracer(""),
		meter:  metricnoop.NewMeterProvider().Meter(""),
		sem:    semaphore.NewWeighted(1),
	}
	for _, o := range opts {
		o(s)
	}
	s.mode = guestMode{store: store}

	var err error
	s.mutations, err = s.meter.Int64Counter("kart.cart.mutations",
		metric.WithDescription("Cart operations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	return s, nil
}

// Snapshot returns the current cart.
func (s *State) Snapshot() cart.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() cart.Cart {
	return cart.Cart{
		Mode:    s.mode.kind(),
		Lines:   s.lines,
		Version: s.version,
	}
}

// Loading reports whether a fetch from the server is in progress.
func (s *State) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// SetAuthenticated selects the mode matching the authentication status and
// loads its cart: the server cart when authenticated, the persisted guest
// cart otherwise. The in-memory cart is emptied first, the two domains are
// never merged.
//
// The signature matches session.Listener.
func (s *State) SetAuthenticated(ctx context.Context, authenticated bool) {
	var m mode = guestMode{store: s.store}
	if authenticated {
		m = remoteMode{api: s.api}
	}

	s.mu.Lock()
	s.mode = m
	s.gen++
	s.version++
	s.lines = nil
	s.loaded = false
	s.mu.Unlock()

	s.lg.Debug("Cart mode selected", zap.String("mode", string(m.kind())))

	// Load failures are logged by run; the cart stays empty.
	_, _ = s.run(ctx, "load", false, func(ctx context.Context, m mode, _ []cart.Line) ([]cart.Line, error) {
		return s.fetch(ctx, m)
	})
}

// Refresh reloads the cart of the current mode. On failure the cart keeps
// its last known contents.
func (s *State) Refresh(ctx context.Context) (cart.Cart, error) {
	return s.run(ctx, "refresh", false, func(ctx context.Context, m mode, _ []cart.Line) ([]cart.Line, error) {
		return s.fetch(ctx, m)
	})
}

// AddItem adds quantity units of p, merging with an existing line for the
// same product. Stock is not checked.
func (s *State) AddItem(ctx context.Context, p product.Product, quantity int) (cart.Cart, error) {
	return s.mutate(ctx, "add", func(ctx context.Context, m mode, lines []cart.Line) ([]cart.Line, error) {
		return m.add(ctx, lines, p, quantity)
	})
}

// UpdateQuantity sets the quantity of the line for productID. Callers are
// expected to pass quantity >= 1; other values are applied as given.
func (s *State) UpdateQuantity(ctx context.Context, productID string, quantity int) (cart.Cart, error) {
	return s.mutate(ctx, "update", func(ctx context.Context, m mode, lines []cart.Line) ([]cart.Line, error) {
		return m.update(ctx, lines, productID, quantity)
	})
}

// RemoveItem drops the line for productID. Unknown ids are not an error.
func (s *State) RemoveItem(ctx context.Context, productID string) (cart.Cart, error) {
	return s.mutate(ctx, "remove", func(ctx context.Context, m mode, lines []cart.Line) ([]cart.Line, error) {
		return m.remove(ctx, lines, productID)
	})
}

// Clear empties the cart and deletes the persisted guest cart in either
// mode. The server cart is left untouched.
func (s *State) Clear(ctx context.Context) (cart.Cart, error) {
	return s.run(ctx, "clear", false, func(ctx context.Context, _ mode, _ []cart.Line) ([]cart.Line, error) {
		if err := s.store.Delete(ctx, storage.KeyCart); err != nil {
			return nil, errors.Wrap(err, "delete guest cart")
		}
		return []cart.Line{}, nil
	})
}

type step func(ctx context.Context, m mode, lines []cart.Line) ([]cart.Line, error)

// mutate runs fn and, for modes backed by the server, reloads the cart
// afterwards.
func (s *State) mutate(ctx context.Context, op string, fn step) (cart.Cart, error) {
	return s.run(ctx, op, true, func(ctx context.Context, m mode, lines []cart.Line) ([]cart.Line, error) {
		next, err := fn(ctx, m, lines)
		if err != nil {
			return nil, err
		}
		if !m.refetch() {
			return next, nil
		}
		return s.fetch(ctx, m)
	})
}

func (s *State) fetch(ctx context.Context, m mode) ([]cart.Line, error) {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()
	return m.load(ctx)
}

// run executes fn exclusively and applies its result if the mode did not
// change meanwhile. An operation issued before a mode change fails with
// ErrModeChanged without running. With needLines set, a local mode whose
// cart has not been read yet is loaded before fn sees it.
func (s *State) run(ctx context.Context, op string, needLines bool, fn step) (cart.Cart, error) {
	s.mu.RLock()
	kind, gen := s.mode.kind(), s.gen
	s.mu.RUnlock()

	ctx, span := s.tracer.Start(ctx, "cart."+op)
	defer span.End()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		span.SetAttributes(attribute.String("cart.mode", string(kind)))
		return s.Snapshot(), s.fail(ctx, span, op, kind, err)
	}
	defer s.sem.Release(1)

	s.mu.RLock()
	m, current, loaded, lines := s.mode, s.gen, s.loaded, s.lines
	s.mu.RUnlock()
	if current != gen {
		span.SetAttributes(attribute.String("cart.mode", string(kind)))
		return s.Snapshot(), s.fail(ctx, span, op, kind, ErrModeChanged)
	}
	kind = m.kind()
	span.SetAttributes(attribute.String("cart.mode", string(kind)))

	if needLines && !loaded && !m.refetch() {
		var err error
		if lines, err = s.fetch(ctx, m); err != nil {
			return s.Snapshot(), s.fail(ctx, span, op, kind, err)
		}
	}

	next, err := fn(ctx, m, lines)
	if err != nil {
		return s.Snapshot(), s.fail(ctx, span, op, kind, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, s.fail(ctx, span, op, kind, ErrModeChanged)
	}
	if next == nil {
		next = []cart.Line{}
	}
	s.version++
	s.lines = next
	s.loaded = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.count(ctx, op, kind, "ok")
	return snap, nil
}

func (s *State) count(ctx context.Context, op string, kind cart.Mode, outcome string) {
	s.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("mode", string(kind)),
		attribute.String("outcome", outcome),
	))
}

func (s *State) fail(ctx context.Context, span trace.Span, op string, kind cart.Mode, err error) error {
	s.count(ctx, op, kind, "error")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.lg.Warn("Cart operation failed",
		zap.String("op", op),
		zap.String("mode", string(kind)),
		zap.Error(err),
	)
	return &Error{Op: op, Mode: kind, Err: err}
}
