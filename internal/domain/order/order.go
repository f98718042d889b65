// Package order prepares the checkout summary of a cart. Orders are not
// placed: checkout stops at the summary.
package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-client/internal/domain/cart"
)

// ErrEmptyCart is returned when checking out a cart without lines.
var ErrEmptyCart = errors.New("cart is empty")

// ProductNotFoundError indicates a cart line refers to a product that is no
// longer in the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity %d is not valid for product %s", e.Quantity, e.ProductID)
}

// InsufficientStockError indicates a line asks for more than is in stock.
type InsufficientStockError struct {
	ProductID string
	Stock     int
	Quantity  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s: %d requested, %d in stock", e.ProductID, e.Quantity, e.Stock)
}

// Summary is what an order for the cart would contain, priced from the
// current catalog.
type Summary struct {
	Reference string
	Lines     []cart.Line
	Items     int
	Total     decimal.Decimal
}
