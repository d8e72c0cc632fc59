package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService         = "order-service"
	useCasePlaceOrder    = "order.place"
	spanPrefix           = "UC."
	peerCustomers        = "customers"
	peerCatalog          = "catalog"
	peerOrders           = "orders"
	peerOutbox           = "outbox"
	publishTimeout       = 300 * time.Millisecond
	DefaultCommitTimeout = 10 * time.Second
)

// PlaceOrderUseCase validates a request against customer and catalog state,
// stores a price-snapshotted order and decrements stock.
type PlaceOrderUseCase struct {
	customers     customer.Lookup
	catalog       inventory.Catalog
	orders        domain.Store
	publisher     domoutbox.Publisher
	commitTimeout time.Duration

	tracer observability.Tracer
	log    observability.Logger
	instruments
}

type Option func(*PlaceOrderUseCase)

// WithCommitTimeout bounds the store-then-decrement section, which ignores
// caller cancellation once it has started.
func WithCommitTimeout(d time.Duration) Option {
	return func(uc *PlaceOrderUseCase) {
		if d > 0 {
			uc.commitTimeout = d
		}
	}
}

// NewPlaceOrderUseCase wires the collaborators required to place orders.
// publisher may be nil, in which case no events are emitted.
func NewPlaceOrderUseCase(
	customers customer.Lookup,
	catalog inventory.Catalog,
	orders domain.Store,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts ...Option,
) *PlaceOrderUseCase {
	uc := &PlaceOrderUseCase{
		customers:     customers,
		catalog:       catalog,
		orders:        orders,
		publisher:     publisher,
		commitTimeout: DefaultCommitTimeout,
		tracer:        observability.TracerOf(tel),
		log:           observability.LoggerOf(tel).With(observability.F("service", orderService)),
		instruments:   newInstruments(tel),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type PlaceOrderInput struct {
	CustomerID string
	Lines      []domain.LineRequest
}

// Execute runs the placement pipeline. Every validation failure happens
// before the first write. Once the order is stored, the stock update runs to
// completion regardless of the caller's context; if it fails the returned
// error is a *domain.PostCommitStockUpdateError and a reconciliation event is
// published.
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *domain.Order, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCasePlaceOrder))

	ctx, span := uc.tracer.Start(ctx, spanPrefix+"PlaceOrder",
		attribute.String("use_case", useCasePlaceOrder),
		attribute.String("order.customer_id", cmd.CustomerID),
		attribute.Int("order.line_count", len(cmd.Lines)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var orderID string
	var publishErr error

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		uc.observe(useCasePlaceOrder, outcome, lat)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
			observability.F("customer_id", cmd.CustomerID),
		}
		fields = append(fields, logctx.TraceFields(ctx)...)
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if publishErr != nil {
			fields = append(fields, observability.F("event_publish_error", publishErr.Error()))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		if outcome == "error" {
			logger.Error("use_case_done", fields...)
			return
		}
		logger.Info("use_case_done", fields...)
	}()

	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	var cust *customer.Customer
	err = uc.call(ctx, peerCustomers, "find_by_id", func(ctx context.Context) error {
		var lookupErr error
		cust, lookupErr = uc.customers.FindByID(ctx, cmd.CustomerID)
		return lookupErr
	})
	switch {
	case errors.Is(err, customer.ErrNotFound):
		outcome, statusText = "rejected", "CUSTOMER_NOT_FOUND"
		return nil, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, cmd.CustomerID)
	case err != nil:
		outcome, statusText = "error", "CUSTOMER_LOOKUP_FAILED"
		return nil, domain.Persistence(err)
	case cust == nil:
		outcome, statusText = "rejected", "CUSTOMER_NOT_FOUND"
		return nil, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, cmd.CustomerID)
	}

	if err := domain.ValidateLines(cmd.Lines); err != nil {
		outcome, statusText = "rejected", "INVALID_REQUEST"
		return nil, err
	}

	var found []inventory.Product
	err = uc.call(ctx, peerCatalog, "find_all_by_id", func(ctx context.Context) error {
		var findErr error
		found, findErr = uc.catalog.FindAllByID(ctx, domain.ProductIDs(cmd.Lines))
		return findErr
	})
	if err != nil {
		outcome, statusText = "error", "CATALOG_LOOKUP_FAILED"
		return nil, domain.Persistence(err)
	}
	products := make(map[string]inventory.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}

	for _, l := range cmd.Lines {
		if _, ok := products[l.ProductID]; !ok {
			outcome, statusText = "rejected", "PRODUCT_NOT_FOUND"
			return nil, &domain.ProductNotFoundError{ProductID: l.ProductID}
		}
	}

	for _, l := range cmd.Lines {
		p := products[l.ProductID]
		if !p.CanFulfil(l.Quantity) {
			outcome, statusText = "rejected", "INSUFFICIENT_STOCK"
			return nil, &domain.InsufficientStockError{ProductID: p.ID, Available: p.StockQuantity}
		}
	}

	lines := make([]domain.Line, 0, len(cmd.Lines))
	for _, l := range cmd.Lines {
		line, lineErr := domain.NewLine(l.ProductID, l.Quantity, products[l.ProductID].Price)
		if lineErr != nil {
			outcome, statusText = "rejected", "INVALID_REQUEST"
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, lineErr)
		}
		lines = append(lines, line)
	}

	// Last point at which abandoning the request leaves no trace.
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.commitTimeout)
	defer cancel()

	var placed *domain.Order
	err = uc.call(commitCtx, peerOrders, "create", func(ctx context.Context) error {
		var createErr error
		placed, createErr = uc.orders.Create(ctx, cust, lines)
		return createErr
	})
	if err != nil {
		outcome, statusText = "error", "ORDER_CREATE_FAILED"
		return nil, domain.Persistence(err)
	}
	orderID = placed.ID
	span.SetAttributes(attribute.String("order.id", placed.ID))

	updates := stockUpdates(placed, products)
	err = uc.call(commitCtx, peerCatalog, "update_quantity", func(ctx context.Context) error {
		return uc.catalog.UpdateQuantity(ctx, updates)
	})
	if err != nil {
		outcome, statusText = "error", "POST_COMMIT_STOCK_UPDATE_FAILED"
		span.AddEvent("order.stock_reconciliation_required",
			trace.WithAttributes(attribute.String("order.id", placed.ID)),
		)
		publishErr = uc.publish(commitCtx, domain.NewStockReconciliationRequiredEvent(placed, err.Error()))
		return nil, &domain.PostCommitStockUpdateError{
			Order:   placed,
			Updates: updates,
			Err:     domain.Persistence(err),
		}
	}

	if publishErr = uc.publish(commitCtx, domain.NewOrderPlacedEvent(placed)); publishErr != nil {
		statusText = "EVENT_PUBLISH_FAILED"
	}

	span.AddEvent("order.placed",
		trace.WithAttributes(
			attribute.String("order.id", placed.ID),
			attribute.String("order.total", placed.Total().String()),
		),
	)
	return placed, nil
}

// stockUpdates computes the new absolute stock level of every ordered product
// from the snapshot read during validation.
func stockUpdates(o *domain.Order, snapshot map[string]inventory.Product) []inventory.StockUpdate {
	updates := make([]inventory.StockUpdate, 0, len(o.Lines))
	for _, l := range o.Lines {
		updates = append(updates, inventory.StockUpdate{
			ProductID: l.ProductID,
			Quantity:  snapshot[l.ProductID].Remaining(l.Quantity),
		})
	}
	return updates
}

func (uc *PlaceOrderUseCase) publish(ctx context.Context, event domoutbox.Event) error {
	if uc.publisher == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return uc.call(pubCtx, peerOutbox, event.EventName(), func(ctx context.Context) error {
		return uc.publisher.Publish(ctx, event)
	})
}
