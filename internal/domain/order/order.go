package order

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
)

// LineRequest is one requested (product, quantity) pair.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// Line is a persisted order line. UnitPrice is the catalog price captured when
// the order was placed and is never recomputed afterwards.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func NewLine(productID string, quantity int, unitPrice decimal.Decimal) (Line, error) {
	if quantity <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	return Line{ProductID: productID, Quantity: quantity, UnitPrice: unitPrice}, nil
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID         string
	CustomerID string
	Lines      []Line
	CreatedAt  time.Time
}

func New(id, customerID string, lines []Line) *Order {
	return &Order{
		ID:         id,
		CustomerID: customerID,
		Lines:      append([]Line(nil), lines...),
		CreatedAt:  time.Now().UTC(),
	}
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone
}

// ValidateLines checks the structural shape of a placement request: at least
// one line, positive quantities, non-blank and distinct product ids.
func ValidateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return invalid("at least one product is required")
	}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return invalid("product id is required")
		}
		if l.Quantity <= 0 {
			return invalid("quantity must be greater than zero for product " + l.ProductID)
		}
		if _, dup := seen[l.ProductID]; dup {
			return invalid("product " + l.ProductID + " is listed more than once")
		}
		seen[l.ProductID] = struct{}{}
	}
	return nil
}

// ProductIDs returns the distinct product ids of lines in first-seen order.
func ProductIDs(lines []LineRequest) []string {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}
