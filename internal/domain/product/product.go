package product

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item as the backend describes it. The client
// never mutates a product; cart lines hold a snapshot of it.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Description string
	// Image is an optional image URL.
	Image    string
	Stock    int
	Category *Category
}

// Category is the optional category reference attached to a product.
type Category struct {
	ID   string
	Name string
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}
