package inventory

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCanFulfil(t *testing.T) {
	p := Product{ID: "P1", Price: decimal.NewFromInt(10), StockQuantity: 3}

	tests := []struct {
		quantity int
		want     bool
	}{
		{quantity: 1, want: true},
		{quantity: 2, want: true},
		{quantity: 3, want: false},
		{quantity: 4, want: false},
	}
	for _, tt := range tests {
		if got := p.CanFulfil(tt.quantity); got != tt.want {
			t.Errorf("CanFulfil(%d) = %v, want %v", tt.quantity, got, tt.want)
		}
	}
}

func TestRemaining(t *testing.T) {
	p := Product{ID: "P1", StockQuantity: 5}
	if got := p.Remaining(3); got != 2 {
		t.Fatalf("Remaining(3) = %d, want 2", got)
	}
}

func TestNewProductRejectsNegativeStock(t *testing.T) {
	if _, err := NewProduct("P1", decimal.NewFromInt(1), -1); !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("NewProduct() error = %v, want ErrNegativeStock", err)
	}
}

func TestStockUpdateValidate(t *testing.T) {
	if err := (StockUpdate{ProductID: "P1", Quantity: 0}).Validate(); err != nil {
		t.Fatalf("zero stock must be allowed: %v", err)
	}
	if err := (StockUpdate{ProductID: "P1", Quantity: -1}).Validate(); !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("Validate() error = %v, want ErrNegativeStock", err)
	}
}

func TestStockDeltaApplyTo(t *testing.T) {
	p := Product{ID: "P1", StockQuantity: 8}

	u, err := StockDelta{ProductID: "P1", Quantity: 3}.ApplyTo(p)
	if err != nil || u != (StockUpdate{ProductID: "P1", Quantity: 5}) {
		t.Fatalf("ApplyTo() = %+v, %v, want P1:5", u, err)
	}
	if _, err := (StockDelta{ProductID: "P1", Quantity: 9}).ApplyTo(p); !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("ApplyTo() error = %v, want ErrNegativeStock", err)
	}
}
