package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"Storefront/internal/product"
)

type MemSource struct {
	products []product.Product
}

// NewMemSource returns a source serving a copy of products.
func NewMemSource(products []product.Product) *MemSource {
	out := make([]product.Product, len(products))
	copy(out, products)
	return &MemSource{products: out}
}

// NewDefaultSource serves the built-in five product list.
func NewDefaultSource() *MemSource {
	return NewMemSource(DefaultProducts())
}

func DefaultProducts() []product.Product {
	return []product.Product{
		{ID: "p1", Name: "Keyboard", Price: decimal.NewFromInt(10000), Quantity: 50},
		{ID: "p2", Name: "Mouse", Price: decimal.NewFromInt(20000), Quantity: 30},
		{ID: "p3", Name: "Monitor", Price: decimal.NewFromInt(30000), Quantity: 20},
		{ID: "p4", Name: "Headset", Price: decimal.NewFromInt(15000), Quantity: 0},
		{ID: "p5", Name: "Webcam", Price: decimal.NewFromInt(25000), Quantity: 10},
	}
}

func (s *MemSource) Ping(ctx context.Context) error { return nil }

func (s *MemSource) Seed(ctx context.Context) ([]product.Product, error) {
	if err := Validate(s.products); err != nil {
		return nil, err
	}

	out := make([]product.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}
