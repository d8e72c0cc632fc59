package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/shopspring/decimal"
)

// openTestDB connects to POSTGRES_TEST_DSN, creates the schema and empties
// every table. Tests are skipped when the variable is not set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE order_lines, orders, products, customers`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email) VALUES ('C1', 'Ada', 'ada@example.com');
		INSERT INTO products (id, price, stock_quantity) VALUES ('P1', 10.00, 5), ('P2', 2.50, 7);`,
	); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func TestPostgresCustomerRepository(t *testing.T) {
	db := openTestDB(t)
	r := NewCustomerRepository(db)

	c, err := r.FindByID(context.Background(), "C1")
	if err != nil || c.Email != "ada@example.com" {
		t.Fatalf("FindByID(C1) = %+v, %v", c, err)
	}
	if _, err := r.FindByID(context.Background(), "C9"); !errors.Is(err, customer.ErrNotFound) {
		t.Fatalf("FindByID(C9) error = %v, want ErrNotFound", err)
	}
}

func TestPostgresCatalogRepository(t *testing.T) {
	db := openTestDB(t)
	r := NewCatalogRepository(db)
	ctx := context.Background()

	found, err := r.FindAllByID(ctx, []string{"P1", "PX", "P2"})
	if err != nil || len(found) != 2 {
		t.Fatalf("FindAllByID() = %v, %v", found, err)
	}

	err = r.UpdateQuantity(ctx, []inventory.StockUpdate{{ProductID: "P1", Quantity: 2}, {ProductID: "PX", Quantity: 1}})
	if !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("UpdateQuantity() with unknown id error = %v, want ErrNotFound", err)
	}
	err = r.UpdateQuantity(ctx, []inventory.StockUpdate{{ProductID: "P1", Quantity: -1}})
	if !errors.Is(err, inventory.ErrNegativeStock) {
		t.Fatalf("UpdateQuantity() with negative level error = %v, want ErrNegativeStock", err)
	}
	if err := r.UpdateQuantity(ctx, []inventory.StockUpdate{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 0}}); err != nil {
		t.Fatalf("UpdateQuantity() error = %v", err)
	}

	found, err = r.FindAllByID(ctx, []string{"P1", "P2"})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range found {
		want := map[string]int{"P1": 2, "P2": 0}[p.ID]
		if p.StockQuantity != want {
			t.Fatalf("%s stock = %d, want %d", p.ID, p.StockQuantity, want)
		}
	}
}

func TestPostgresOrderRepository(t *testing.T) {
	db := openTestDB(t)
	r := NewOrderRepository(db, id.NewUUIDGenerator())
	ctx := context.Background()

	created, err := r.Create(ctx, &customer.Customer{ID: "C1"}, []order.Line{
		{ProductID: "P1", Quantity: 3, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "P2", Quantity: 1, UnitPrice: decimal.RequireFromString("2.50")},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not populated")
	}

	got, err := r.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Lines) != 2 || got.Lines[0].ProductID != "P1" || !got.Total().Equal(decimal.RequireFromString("32.50")) {
		t.Fatalf("Get() = %+v", got)
	}
	if _, err := r.Get(ctx, "missing"); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}
