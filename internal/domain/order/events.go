package order

import (
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// OrderPlacedEvent is emitted once an order is stored and its stock applied.
type OrderPlacedEvent struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Lines      []EventLine     `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type EventLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func (e OrderPlacedEvent) EventKey() string { return e.OrderID }

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	lines := make([]EventLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, EventLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return OrderPlacedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Lines:      lines,
		Total:      o.Total(),
		OccurredAt: time.Now().UTC(),
	}
}

// StockReconciliationRequiredEvent is emitted when an order was committed but
// its stock decrement did not go through. Deltas are the units each line still
// has to take off the catalog.
type StockReconciliationRequiredEvent struct {
	OrderID    string                 `json:"order_id"`
	Deltas     []inventory.StockDelta `json:"deltas"`
	Reason     string                 `json:"reason"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (StockReconciliationRequiredEvent) EventName() string {
	return "order.stock_reconciliation_required"
}

func (e StockReconciliationRequiredEvent) EventKey() string { return e.OrderID }

func NewStockReconciliationRequiredEvent(o *Order, reason string) StockReconciliationRequiredEvent {
	deltas := make([]inventory.StockDelta, 0, len(o.Lines))
	for _, l := range o.Lines {
		deltas = append(deltas, inventory.StockDelta{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return StockReconciliationRequiredEvent{
		OrderID:    o.ID,
		Deltas:     deltas,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
