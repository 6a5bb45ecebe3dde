package product

import "github.com/shopspring/decimal"

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	OnSale      bool            `json:"on_sale"`
	Recommended bool            `json:"recommended"`
}

// Snapshot is one published state of a Store. Version identifies it; two
// snapshots with the same Version hold the same contents.
type Snapshot struct {
	Version  uint64    `json:"version"`
	Products []Product `json:"products"`
	LastSale *Product  `json:"last_sale,omitempty"`
	Cause    string    `json:"cause,omitempty"`
	Notice   string    `json:"notice,omitempty"`
}

const (
	CauseSeed      = "seed"
	CauseIncrease  = "increase"
	CauseDecrease  = "decrease"
	CauseReset     = "reset"
	CauseLastSale  = "last_sale"
	CauseFlashSale = "flash_sale"
	CauseRecommend = "recommend"
)

func cloneList(in []Product) []Product {
	out := make([]Product, len(in))
	copy(out, in)
	return out
}

func indexOf(products []Product, id string) int {
	for i := range products {
		if products[i].ID == id {
			return i
		}
	}
	return -1
}
