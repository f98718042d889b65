// Package cart holds the cart value types and the pure line operations the
// guest mode applies before persisting.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-client/internal/domain/product"
)

// Mode names the storage domain a cart belongs to.
type Mode string

const (
	// ModeGuest keeps the cart in device-local storage.
	ModeGuest Mode = "guest"
	// ModeAuthenticated treats the server cart as the source of truth.
	ModeAuthenticated Mode = "authenticated"
)

// Line is a product snapshot together with the requested quantity.
type Line struct {
	Product  product.Product
	Quantity int
}

// Subtotal returns unit price multiplied by quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an immutable snapshot of the cart contents. Version grows with
// every snapshot the owning state applies.
type Cart struct {
	Mode    Mode
	Lines   []Line
	Version uint64
}

// Count returns the sum of all line quantities.
func (c Cart) Count() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// Total returns the exact sum of line subtotals. Rounding is left to
// presentation, see FormatAmount.
func (c Cart) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Find returns the line for productID.
func (c Cart) Find(productID string) (Line, bool) {
	i := indexOf(c.Lines, productID)
	if i < 0 {
		return Line{}, false
	}
	return c.Lines[i], true
}

// FormatAmount renders a currency amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// AddLine increments the quantity of an existing line for p, or appends a
// new line. Stock is not consulted. The input slice is not modified.
func AddLine(lines []Line, p product.Product, quantity int) []Line {
	out := slices.Clone(lines)
	if i := indexOf(out, p.ID); i >= 0 {
		out[i].Quantity += quantity
		return out
	}
	return append(out, Line{Product: p, Quantity: quantity})
}

// SetQuantity replaces the quantity of the line for productID verbatim,
// including values below one. Unknown ids leave the lines unchanged.
func SetQuantity(lines []Line, productID string, quantity int) []Line {
	out := slices.Clone(lines)
	if i := indexOf(out, productID); i >= 0 {
		out[i].Quantity = quantity
	}
	return out
}

// RemoveLine drops the line for productID. Unknown ids leave the lines
// unchanged.
func RemoveLine(lines []Line, productID string) []Line {
	return slices.DeleteFunc(slices.Clone(lines), func(l Line) bool {
		return l.Product.ID == productID
	})
}

func indexOf(lines []Line, productID string) int {
	return slices.IndexFunc(lines, func(l Line) bool {
		return l.Product.ID == productID
	})
}
