package inventory

import (
	"context"
)

// Catalog resolves product records and applies stock changes.
//
// FindAllByID returns only the products it found; a missing id is never an
// error. UpdateQuantity applies every update or none of them, rejecting
// unknown ids with ErrNotFound and negative levels with ErrNegativeStock even
// under concurrent callers.
type Catalog interface {
	FindAllByID(ctx context.Context, ids []string) ([]Product, error)
	UpdateQuantity(ctx context.Context, updates []StockUpdate) error
}
