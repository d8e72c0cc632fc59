package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	useCaseReconcileStock    = "order.reconcile_stock"
	DefaultReconcileAttempts = 5
	DefaultReconcileBackoff  = 200 * time.Millisecond
)

var ErrReconciliationExhausted = errors.New("order: stock reconciliation retries exhausted")

type ReconcileResult struct {
	Applied  bool
	Attempts int
}

// ReconcileStockUseCase takes a committed order's quantities off the catalog
// after its decrement failed. Each attempt reads the current stock, so orders
// placed in the meantime are not overwritten. An order is reconciled at most
// once per process; redeliveries of its event are skipped.
type ReconcileStockUseCase struct {
	catalog  inventory.Catalog
	attempts int
	backoff  time.Duration

	mu       sync.Mutex
	applied  map[string]struct{}
	inflight map[string]struct{}

	tracer observability.Tracer
	log    observability.Logger
	instruments
}

func NewReconcileStockUseCase(catalog inventory.Catalog, attempts int, backoff time.Duration, tel observability.Observability) *ReconcileStockUseCase {
	if attempts <= 0 {
		attempts = DefaultReconcileAttempts
	}
	if backoff <= 0 {
		backoff = DefaultReconcileBackoff
	}
	return &ReconcileStockUseCase{
		catalog:     catalog,
		attempts:    attempts,
		backoff:     backoff,
		applied:     make(map[string]struct{}),
		inflight:    make(map[string]struct{}),
		tracer:      observability.TracerOf(tel),
		log:         observability.LoggerOf(tel).With(observability.F("service", orderService)),
		instruments: newInstruments(tel),
	}
}

func (uc *ReconcileStockUseCase) Execute(ctx context.Context, e domain.StockReconciliationRequiredEvent) (_ *ReconcileResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseReconcileStock),
		observability.F("order_id", e.OrderID),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"ReconcileStock",
		attribute.String("use_case", useCaseReconcileStock),
		attribute.String("order.id", e.OrderID),
		attribute.Int("stock.delta_count", len(e.Deltas)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	result := &ReconcileResult{}

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.SetAttributes(attribute.Int("reconcile.attempts", result.Attempts))
		span.End()
		uc.observe(useCaseReconcileStock, outcome, lat)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("attempts", result.Attempts),
			observability.F("latency_seconds", lat),
			observability.F("deltas", e.Deltas),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
			logger.Error("use_case_done", fields...)
			return
		}
		logger.Info("use_case_done", fields...)
	}()

	if len(e.Deltas) == 0 {
		result.Applied = true
		statusText = "NOTHING_TO_APPLY"
		return result, nil
	}

	switch uc.claim(e.OrderID) {
	case claimApplied:
		result.Applied = true
		statusText = "ALREADY_APPLIED"
		return result, nil
	case claimInFlight:
		statusText = "ALREADY_IN_PROGRESS"
		return result, nil
	}
	defer func() { uc.release(e.OrderID, result.Applied) }()

	delay := uc.backoff
	var lastErr error
	for attempt := 1; attempt <= uc.attempts; attempt++ {
		result.Attempts = attempt
		lastErr = uc.apply(ctx, e.Deltas)
		if lastErr == nil {
			result.Applied = true
			return result, nil
		}
		if permanent(lastErr) {
			outcome, statusText = "error", "STOCK_UPDATE_REJECTED"
			return result, fmt.Errorf("order: reconcile %s: %w", e.OrderID, lastErr)
		}

		logger.Warn("stock_reconciliation_retry",
			observability.F("attempt", attempt),
			observability.F("error", lastErr.Error()),
		)
		if attempt == uc.attempts {
			break
		}
		select {
		case <-ctx.Done():
			outcome, statusText = "error", "CONTEXT_CANCELED"
			return result, errors.Join(ctx.Err(), lastErr)
		case <-time.After(delay):
		}
		delay *= 2
	}

	outcome, statusText = "error", "RETRIES_EXHAUSTED"
	return result, fmt.Errorf("%w: order %s: %w", ErrReconciliationExhausted, e.OrderID, lastErr)
}

// apply reads the current stock of every product in deltas and writes the
// levels left after taking the deltas off.
func (uc *ReconcileStockUseCase) apply(ctx context.Context, deltas []inventory.StockDelta) error {
	ids := make([]string, 0, len(deltas))
	for _, d := range deltas {
		ids = append(ids, d.ProductID)
	}

	var found []inventory.Product
	err := uc.call(ctx, peerCatalog, "find_all_by_id", func(ctx context.Context) error {
		var findErr error
		found, findErr = uc.catalog.FindAllByID(ctx, ids)
		return findErr
	})
	if err != nil {
		return err
	}
	current := make(map[string]inventory.Product, len(found))
	for _, p := range found {
		current[p.ID] = p
	}

	updates := make([]inventory.StockUpdate, 0, len(deltas))
	for _, d := range deltas {
		p, ok := current[d.ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", inventory.ErrNotFound, d.ProductID)
		}
		u, err := d.ApplyTo(p)
		if err != nil {
			return fmt.Errorf("product %s: %w", d.ProductID, err)
		}
		// Several lines of one order never share a product, but keep the
		// running level correct if they do.
		current[d.ProductID] = inventory.Product{ID: p.ID, Price: p.Price, StockQuantity: u.Quantity}
		updates = append(updates, u)
	}

	return uc.call(ctx, peerCatalog, "update_quantity", func(ctx context.Context) error {
		return uc.catalog.UpdateQuantity(ctx, updates)
	})
}

type claimState int

const (
	claimed claimState = iota
	claimApplied
	claimInFlight
)

func (uc *ReconcileStockUseCase) claim(orderID string) claimState {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, ok := uc.applied[orderID]; ok {
		return claimApplied
	}
	if _, ok := uc.inflight[orderID]; ok {
		return claimInFlight
	}
	uc.inflight[orderID] = struct{}{}
	return claimed
}

func (uc *ReconcileStockUseCase) release(orderID string, applied bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.inflight, orderID)
	if applied {
		uc.applied[orderID] = struct{}{}
	}
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, inventory.ErrNotFound) || errors.Is(err, inventory.ErrNegativeStock)
}
