package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
)

type OrderRepository struct {
	mu     sync.RWMutex
	ids    id.Generator
	orders map[string]*domain.Order
}

func NewOrderRepository(ids id.Generator) *OrderRepository {
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	return &OrderRepository{
		ids:    ids,
		orders: make(map[string]*domain.Order),
	}
}

func (r *OrderRepository) Create(ctx context.Context, c *customer.Customer, lines []domain.Line) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c == nil || c.ID == "" {
		return nil, fmt.Errorf("order repository: customer is required")
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("order repository: at least one line is required")
	}

	o := domain.New(r.ids.NewID(), c.ID, lines)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return nil, fmt.Errorf("order repository: duplicate id %s", o.ID)
	}
	r.orders[o.ID] = o.Clone()
	return o, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

// Len reports how many orders are stored.
func (r *OrderRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
