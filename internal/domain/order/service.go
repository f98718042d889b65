package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/product"
)

// Catalog looks up current product data.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (product.Product, error)
}

// Service prepares checkout summaries.
type Service struct {
	catalog Catalog
}

// NewService creates a Service reading prices and stock from catalog.
func NewService(catalog Catalog) *Service {
	return &Service{catalog: catalog}
}

// Preview validates quantities, re-reads every product from the catalog,
// checks stock and returns the priced summary.
func (s *Service) Preview(ctx context.Context, c cart.Cart) (*Summary, error) {
	if c.Empty() {
		return nil, ErrEmptyCart
	}
	for _, l := range c.Lines {
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.Product.ID, Quantity: l.Quantity}
		}
	}

	// Fetch the current products concurrently, keeping line order.
	current := make([]product.Product, len(c.Lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, l := range c.Lines {
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, l.Product.ID)
			if errors.Is(err, product.ErrNotFound) {
				return &ProductNotFoundError{ProductID: l.Product.ID}
			}
			if err != nil {
				return errors.Wrapf(err, "get product %s", l.Product.ID)
			}
			current[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lines := make([]cart.Line, len(c.Lines))
	for i, l := range c.Lines {
		p := current[i]
		if l.Quantity > p.Stock {
			return nil, &InsufficientStockError{ProductID: p.ID, Stock: p.Stock, Quantity: l.Quantity}
		}
		lines[i] = cart.Line{Product: p, Quantity: l.Quantity}
	}

	priced := cart.Cart{Lines: lines}
	return &Summary{
		Reference: uuid.NewString(),
		Lines:     lines,
		Items:     priced.Count(),
		Total:     priced.Total().Round(2),
	}, nil
}
