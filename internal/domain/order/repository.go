package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
)

// Store persists orders. Create stores the order and all of its lines
// atomically and returns the stored representation with its generated id.
type Store interface {
	Create(ctx context.Context, c *customer.Customer, lines []Line) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
}
