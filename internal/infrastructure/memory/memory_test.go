package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/shopspring/decimal"
)

func seededCatalog() *CatalogRepository {
	return NewCatalogRepository(
		inventory.Product{ID: "P1", Price: decimal.NewFromInt(10), StockQuantity: 5},
		inventory.Product{ID: "P2", Price: decimal.NewFromInt(3), StockQuantity: 7},
	)
}

func TestCatalogFindAllByIDReturnsFoundSubset(t *testing.T) {
	r := seededCatalog()

	got, err := r.FindAllByID(context.Background(), []string{"P2", "PX", "P1"})
	if err != nil {
		t.Fatalf("FindAllByID() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FindAllByID() returned %d products, want 2", len(got))
	}
}

func TestCatalogUpdateQuantity(t *testing.T) {
	tests := []struct {
		name    string
		updates []inventory.StockUpdate
		wantErr error
		wantP1  int
		wantP2  int
	}{
		{
			name:    "applies batch",
			updates: []inventory.StockUpdate{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 0}},
			wantP1:  2,
			wantP2:  0,
		},
		{
			name:    "unknown product rejects whole batch",
			updates: []inventory.StockUpdate{{ProductID: "P1", Quantity: 2}, {ProductID: "PX", Quantity: 1}},
			wantErr: inventory.ErrNotFound,
			wantP1:  5,
			wantP2:  7,
		},
		{
			name:    "negative level rejects whole batch",
			updates: []inventory.StockUpdate{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: -1}},
			wantErr: inventory.ErrNegativeStock,
			wantP1:  5,
			wantP2:  7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := seededCatalog()
			err := r.UpdateQuantity(context.Background(), tt.updates)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("UpdateQuantity() error = %v, want %v", err, tt.wantErr)
			}
			p1, _ := r.Get("P1")
			p2, _ := r.Get("P2")
			if p1.StockQuantity != tt.wantP1 || p2.StockQuantity != tt.wantP2 {
				t.Fatalf("stock = P1:%d P2:%d, want P1:%d P2:%d", p1.StockQuantity, p2.StockQuantity, tt.wantP1, tt.wantP2)
			}
		})
	}
}

func TestCatalogRespectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := seededCatalog()
	if _, err := r.FindAllByID(ctx, []string{"P1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("FindAllByID() error = %v, want context.Canceled", err)
	}
	if err := r.UpdateQuantity(ctx, []inventory.StockUpdate{{ProductID: "P1", Quantity: 0}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("UpdateQuantity() error = %v, want context.Canceled", err)
	}
}

func TestCatalogPutRejectsNegativeStock(t *testing.T) {
	r := NewCatalogRepository()
	if err := r.Put(inventory.Product{ID: "P1", StockQuantity: -1}); !errors.Is(err, inventory.ErrNegativeStock) {
		t.Fatalf("Put() error = %v, want ErrNegativeStock", err)
	}
}

func TestCustomerRepository(t *testing.T) {
	r := NewCustomerRepository(customer.Customer{ID: "C1", Name: "Ada"})

	c, err := r.FindByID(context.Background(), "C1")
	if err != nil || c.Name != "Ada" {
		t.Fatalf("FindByID(C1) = %+v, %v", c, err)
	}
	if _, err := r.FindByID(context.Background(), "C2"); !errors.Is(err, customer.ErrNotFound) {
		t.Fatalf("FindByID(C2) error = %v, want ErrNotFound", err)
	}
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "O" + string(rune('0'+s.n))
}

func TestOrderRepositoryCreateAndGet(t *testing.T) {
	r := NewOrderRepository(&seqIDs{})
	c := &customer.Customer{ID: "C1"}
	lines := []order.Line{{ProductID: "P1", Quantity: 2, UnitPrice: decimal.NewFromInt(10)}}

	o, err := r.Create(context.Background(), c, lines)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if o.ID != "O1" || o.CustomerID != "C1" {
		t.Fatalf("Create() = %+v", o)
	}

	// Mutating the returned order must not leak into storage.
	o.Lines[0].Quantity = 99

	got, err := r.Get(context.Background(), "O1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Lines[0].Quantity != 2 {
		t.Fatalf("stored quantity = %d, want 2", got.Lines[0].Quantity)
	}
	if _, err := r.Get(context.Background(), "O9"); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("Get(O9) error = %v, want ErrNotFound", err)
	}
}

func TestOrderRepositoryRespectsCanceledContext(t *testing.T) {
	r := NewOrderRepository(&seqIDs{})
	lines := []order.Line{{ProductID: "P1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}
	if _, err := r.Create(context.Background(), &customer.Customer{ID: "C1"}, lines); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Get(ctx, "O1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Get() error = %v, want context.Canceled", err)
	}
}

func TestOrderRepositoryRejectsDuplicateIDs(t *testing.T) {
	r := NewOrderRepository(fixedID("same"))
	c := &customer.Customer{ID: "C1"}
	lines := []order.Line{{ProductID: "P1", Quantity: 1}}

	if _, err := r.Create(context.Background(), c, lines); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := r.Create(context.Background(), c, lines); err == nil {
		t.Fatalf("second Create() with the same id should fail")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

type fixedID string

func (f fixedID) NewID() string { return string(f) }

func TestCatalogConcurrentUpdatesNeverGoNegative(t *testing.T) {
	r := seededCatalog()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_ = r.UpdateQuantity(context.Background(), []inventory.StockUpdate{{ProductID: "P1", Quantity: q % 6}})
			_, _ = r.FindAllByID(context.Background(), []string{"P1"})
		}(i)
	}
	wg.Wait()

	p, _ := r.Get("P1")
	if p.StockQuantity < 0 || p.StockQuantity > 5 {
		t.Fatalf("P1 stock = %d, want within [0,5]", p.StockQuantity)
	}
}
