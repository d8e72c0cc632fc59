package inventory

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("inventory: product not found")
	ErrNegativeStock = errors.New("inventory: stock quantity cannot drop below zero")
)

// Product is the catalog's view of a sellable item at the moment it was read.
type Product struct {
	ID            string
	Price         decimal.Decimal
	StockQuantity int
}

func NewProduct(id string, price decimal.Decimal, stock int) (*Product, error) {
	if stock < 0 {
		return nil, ErrNegativeStock
	}
	return &Product{ID: id, Price: price, StockQuantity: stock}, nil
}

// CanFulfil reports whether the product has stock left over after handing out
// quantity units. A request for exactly the available stock is refused.
func (p Product) CanFulfil(quantity int) bool {
	return p.StockQuantity > quantity
}

// Remaining is the stock level after quantity units leave the shelf.
func (p Product) Remaining(quantity int) int {
	return p.StockQuantity - quantity
}

// StockUpdate sets the absolute stock level of a product.
type StockUpdate struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StockDelta is a number of units to take off a product's current stock.
type StockDelta struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ApplyTo computes the absolute level left on p once the delta is taken off.
func (d StockDelta) ApplyTo(p Product) (StockUpdate, error) {
	u := StockUpdate{ProductID: p.ID, Quantity: p.Remaining(d.Quantity)}
	if err := u.Validate(); err != nil {
		return StockUpdate{}, err
	}
	return u, nil
}

func (u StockUpdate) Validate() error {
	if u.Quantity < 0 {
		return ErrNegativeStock
	}
	return nil
}
