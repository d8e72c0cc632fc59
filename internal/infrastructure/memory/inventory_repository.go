package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

// CatalogRepository is an in-memory product catalog. Batch updates are
// validated in full under the write lock before any product is touched.
type CatalogRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewCatalogRepository(products ...domain.Product) *CatalogRepository {
	r := &CatalogRepository{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// Put inserts or replaces a product.
func (r *CatalogRepository) Put(p domain.Product) error {
	if p.StockQuantity < 0 {
		return domain.ErrNegativeStock
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}

func (r *CatalogRepository) FindAllByID(ctx context.Context, ids []string) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *CatalogRepository) UpdateQuantity(ctx context.Context, updates []domain.StockUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range updates {
		if _, ok := r.products[u.ProductID]; !ok {
			return domain.ErrNotFound
		}
		if err := u.Validate(); err != nil {
			return err
		}
	}
	for _, u := range updates {
		p := r.products[u.ProductID]
		p.StockQuantity = u.Quantity
		r.products[u.ProductID] = p
	}
	return nil
}

// Get returns a single product; used by tests and the demo seeding path.
func (r *CatalogRepository) Get(id string) (domain.Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	return p, ok
}
