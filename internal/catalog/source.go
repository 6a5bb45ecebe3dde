// Package catalog provides the seed product lists that session stores start
// from and reset quantities to.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"Storefront/internal/product"
)

var (
	ErrEmptySeed   = errors.New("seed list is empty")
	ErrDuplicateID = errors.New("duplicate product id in seed")
	ErrMissingID   = errors.New("product id is empty in seed")
)

type Source interface {
	// Seed returns the initial product list in display order.
	Seed(ctx context.Context) ([]product.Product, error)
	Ping(ctx context.Context) error
}

// Validate checks the invariants a Store relies on: at least one product,
// non-empty ids, unique ids.
func Validate(products []product.Product) error {
	if len(products) == 0 {
		return ErrEmptySeed
	}

	seen := make(map[string]struct{}, len(products))
	for i, p := range products {
		if p.ID == "" {
			return fmt.Errorf("%w: position %d", ErrMissingID, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
