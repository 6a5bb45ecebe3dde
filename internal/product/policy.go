package product

import (
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// FlashSalePolicy derives the next list from the current one. It must not
// modify products.
type FlashSalePolicy func(products []Product) (Change, bool)

// RecommendPolicy derives the next list from the current one and the last
// sale item, which may be nil. It must not modify products.
type RecommendPolicy func(products []Product, lastSale *Product) (Change, bool)

// Picker returns an index in [0, n).
type Picker func(n int) int

var (
	flashSaleRate = decimal.RequireFromString("0.8")
	recommendRate = decimal.RequireFromString("0.95")
)

func RandomPicker() Picker { return rand.IntN }

// FlashSale picks one product at random and, if it is in stock and not on
// sale yet, takes 20% off its price.
func FlashSale(pick Picker) FlashSalePolicy {
	if pick == nil {
		pick = RandomPicker()
	}
	return func(products []Product) (Change, bool) {
		if len(products) == 0 {
			return Change{}, false
		}

		i := pick(len(products))
		if i < 0 || i >= len(products) {
			return Change{}, false
		}
		p := products[i]
		if p.Quantity <= 0 || p.OnSale {
			return Change{}, false
		}

		next := cloneList(products)
		next[i].Price = discount(p.Price, flashSaleRate)
		next[i].OnSale = true

		return Change{
			Products: next,
			Notice:   fmt.Sprintf("Flash sale! %s is 20%% off.", p.Name),
		}, true
	}
}

// Recommend marks the first in-stock product other than the last sale item
// as recommended and takes 5% off its price. Nothing happens before a sale.
func Recommend() RecommendPolicy {
	return func(products []Product, lastSale *Product) (Change, bool) {
		if lastSale == nil {
			return Change{}, false
		}

		for i, p := range products {
			if p.ID == lastSale.ID || p.Quantity <= 0 || p.Recommended {
				continue
			}

			next := cloneList(products)
			next[i].Price = discount(p.Price, recommendRate)
			next[i].Recommended = true

			return Change{
				Products: next,
				Notice:   fmt.Sprintf("How about %s? Buy now for an extra 5%% off.", p.Name),
			}, true
		}
		return Change{}, false
	}
}

func discount(price, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(rate).Round(0)
}
