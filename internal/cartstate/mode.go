package cartstate

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/product"
	"github.com/xenking/marketplace-client/internal/storage"
	"github.com/xenking/marketplace-client/internal/wire"
)

// RemoteCart is the server side of an authenticated cart.
type RemoteCart interface {
	GetCart(ctx context.Context) ([]cart.Line, error)
	AddCartItem(ctx context.Context, productID string, quantity int) error
	UpdateCartItem(ctx context.Context, productID string, quantity int) error
	RemoveCartItem(ctx context.Context, productID string) error
}

// mode is one storage domain of the cart.
//
// Mutators receive the lines currently held in memory and return the lines
// to apply. A mode whose source of truth lives elsewhere reports
// refetch() == true and the state reloads after every mutation instead.
type mode interface {
	kind() cart.Mode
	refetch() bool
	load(ctx context.Context) ([]cart.Line, error)
	add(ctx context.Context, lines []cart.Line, p product.Product, quantity int) ([]cart.Line, error)
	update(ctx context.Context, lines []cart.Line, productID string, quantity int) ([]cart.Line, error)
	remove(ctx context.Context, lines []cart.Line, productID string) ([]cart.Line, error)
}

// guestMode keeps the cart in the device store under storage.KeyCart.
// Every mutation writes the whole cart back before returning.
type guestMode struct {
	store storage.Store
}

var _ mode = guestMode{}

func (guestMode) kind() cart.Mode { return cart.ModeGuest }

func (guestMode) refetch() bool { return false }

func (g guestMode) load(ctx context.Context) ([]cart.Line, error) {
	data, err := g.store.Get(ctx, storage.KeyCart)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read guest cart")
	}
	lines, err := wire.UnmarshalLines(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode guest cart")
	}
	return lines, nil
}

func (g guestMode) add(ctx context.Context, lines []cart.Line, p product.Product, quantity int) ([]cart.Line, error) {
	return g.persist(ctx, cart.AddLine(lines, p, quantity))
}

func (g guestMode) update(ctx context.Context, lines []cart.Line, productID string, quantity int) ([]cart.Line, error) {
	return g.persist(ctx, cart.SetQuantity(lines, productID, quantity))
}

func (g guestMode) remove(ctx context.Context, lines []cart.Line, productID string) ([]cart.Line, error) {
	return g.persist(ctx, cart.RemoveLine(lines, productID))
}

func (g guestMode) persist(ctx context.Context, lines []cart.Line) ([]cart.Line, error) {
	if err := g.store.Set(ctx, storage.KeyCart, wire.MarshalLines(lines)); err != nil {
		return nil, errors.Wrap(err, "write guest cart")
	}
	return lines, nil
}

// remoteMode forwards mutations to the server; the in-memory cart is only a
// cache of the last fetch.
type remoteMode struct {
	api RemoteCart
}

var _ mode = remoteMode{}

func (remoteMode) kind() cart.Mode { return cart.ModeAuthenticated }

func (remoteMode) refetch() bool { return true }

func (r remoteMode) load(ctx context.Context) ([]cart.Line, error) {
	return r.api.GetCart(ctx)
}

func (r remoteMode) add(ctx context.Context, _ []cart.Line, p product.Product, quantity int) ([]cart.Line, error) {
	return nil, r.api.AddCartItem(ctx, p.ID, quantity)
}

// update forwards quantity unchanged, the server decides what a
// non-positive quantity means.
func (r remoteMode) update(ctx context.Context, _ []cart.Line, productID string, quantity int) ([]cart.Line, error) {
	return nil, r.api.UpdateCartItem(ctx, productID, quantity)
}

func (r remoteMode) remove(ctx context.Context, _ []cart.Line, productID string) ([]cart.Line, error) {
	return nil, r.api.RemoveCartItem(ctx, productID)
}
