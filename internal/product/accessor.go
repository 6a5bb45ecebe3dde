package product

import (
	"context"
	"errors"
	"fmt"
)

// ErrOutsideProvider means an accessor ran without a Store in its context.
// It signals a wiring mistake, not a runtime condition to retry.
var ErrOutsideProvider = errors.New("used outside provider")

const providerName = "product provider"

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Store)
	return s, ok && s != nil
}

func use(ctx context.Context, accessor string) (*Store, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be used within the %s", ErrOutsideProvider, accessor, providerName)
	}
	return s, nil
}

func ProductList(ctx context.Context) ([]Product, error) {
	s, err := use(ctx, "ProductList")
	if err != nil {
		return nil, err
	}
	return s.Products(), nil
}

func IncreaseQuantity(ctx context.Context) (func(id string) bool, error) {
	s, err := use(ctx, "IncreaseQuantity")
	if err != nil {
		return nil, err
	}
	return s.IncreaseQuantity, nil
}

func DecreaseQuantity(ctx context.Context) (func(id string) bool, error) {
	s, err := use(ctx, "DecreaseQuantity")
	if err != nil {
		return nil, err
	}
	return s.DecreaseQuantity, nil
}

func ResetQuantity(ctx context.Context) (func(id string) bool, error) {
	s, err := use(ctx, "ResetQuantity")
	if err != nil {
		return nil, err
	}
	return s.ResetQuantity, nil
}

func AddLastSaleItem(ctx context.Context) (func(item Product), error) {
	s, err := use(ctx, "AddLastSaleItem")
	if err != nil {
		return nil, err
	}
	return s.AddLastSaleItem, nil
}

func LastSaleItem(ctx context.Context) (Product, bool, error) {
	s, err := use(ctx, "LastSaleItem")
	if err != nil {
		return Product{}, false, err
	}
	p, ok := s.LastSaleItem()
	return p, ok, nil
}

// CurrentSnapshot exposes the whole published value, for consumers that
// render the list together with its version.
func CurrentSnapshot(ctx context.Context) (Snapshot, error) {
	s, err := use(ctx, "CurrentSnapshot")
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}
