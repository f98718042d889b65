package stubserver

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/marketplace-client/internal/domain/product"
)

// catalogFile is the YAML layout of a catalog:
//
//	categories:
//	  - {id: c1, name: Books}
//	products:
//	  - {id: p1, name: Go in Action, price: "39.99", stock: 5, category: c1}
type catalogFile struct {
	Categories []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"categories"`
	Products []struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Price       string `yaml:"price"`
		Description string `yaml:"description"`
		Image       string `yaml:"image"`
		Stock       int    `yaml:"stock"`
		Category    string `yaml:"category"`
	} `yaml:"products"`
}

// LoadCatalog reads products from a YAML file.
func LoadCatalog(path string) ([]product.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	return ParseCatalog(data)
}

// ParseCatalog parses a YAML catalog and validates it.
func ParseCatalog(data []byte) ([]product.Product, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}

	categories := make(map[string]*product.Category, len(f.Categories))
	for _, c := range f.Categories {
		categories[c.ID] = &product.Category{ID: c.ID, Name: c.Name}
	}

	products := make([]product.Product, 0, len(f.Products))
	for _, p := range f.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "product %q: price", p.ID)
		}
		item := product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Price:       price,
			Description: p.Description,
			Image:       p.Image,
			Stock:       p.Stock,
		}
		if p.Category != "" {
			c, ok := categories[p.Category]
			if !ok {
				return nil, errors.Errorf("product %q: unknown category %q", p.ID, p.Category)
			}
			item.Category = c
		}
		products = append(products, item)
	}
	if err := validateCatalog(products); err != nil {
		return nil, err
	}
	return products, nil
}

func validateCatalog(products []product.Product) error {
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if p.ID == "" {
			return errors.Errorf("product %q: empty id", p.Name)
		}
		if _, dup := seen[p.ID]; dup {
			return errors.Errorf("product %q: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Price.IsNegative() {
			return errors.Errorf("product %q: negative price", p.ID)
		}
		if p.Stock < 0 {
			return errors.Errorf("product %q: negative stock", p.ID)
		}
	}
	return nil
}

// DefaultCatalog returns the built-in demo catalog.
func DefaultCatalog() []product.Product {
	electronics := &product.Category{ID: "c-electronics", Name: "Electronics"}
	books := &product.Category{ID: "c-books", Name: "Books"}
	home := &product.Category{ID: "c-home", Name: "Home"}

	return []product.Product{
		{
			ID:          "p-headphones",
			Name:        "Wireless Headphones",
			Price:       decimal.RequireFromString("89.99"),
			Description: "Over-ear, 30 hour battery.",
			Image:       "https://images.example.com/headphones.jpg",
			Stock:       12,
			Category:    electronics,
		},
		{
			ID:          "p-keyboard",
			Name:        "Mechanical Keyboard",
			Price:       decimal.RequireFromString("129.50"),
			Description: "Tenkeyless, brown switches.",
			Stock:       4,
			Category:    electronics,
		},
		{
			ID:          "p-gopl",
			Name:        "The Go Programming Language",
			Price:       decimal.RequireFromString("39.99"),
			Description: "Donovan and Kernighan.",
			Image:       "https://images.example.com/gopl.jpg",
			Stock:       25,
			Category:    books,
		},
		{
			ID:          "p-mug",
			Name:        "Coffee Mug",
			Price:       decimal.RequireFromString("9.99"),
			Description: "350 ml, dishwasher safe.",
			Stock:       40,
			Category:    home,
		},
		{
			ID:          "p-lamp",
			Name:        "Desk Lamp",
			Price:       decimal.RequireFromString("24.00"),
			Description: "Warm white LED.",
			Stock:       0,
			Category:    home,
		},
	}
}
