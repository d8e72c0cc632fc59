package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
)

func TestWorker_ReconcilesAfterPostCommitFailure(t *testing.T) {
	tt := newTestTelemetry(t)
	f := newFixture(t, productSeed{"P1", "10.00", 5})
	applied := make(chan struct{})
	f.catalog.updateErr = errors.New("catalog unavailable")
	f.catalog.failUpdates = 1
	f.catalog.applied = applied

	bus := outbox.NewBus(tt.tel)
	reconcile := apporder.NewReconcileStockUseCase(f.catalog, 3, time.Millisecond, tt.tel)
	apporder.NewWorker(bus, reconcile, tt.tel).Start()
	bus.Start(context.Background())
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	uc := apporder.NewPlaceOrderUseCase(f.customers, f.catalog, f.orders, bus, tt.tel)
	_, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{CustomerID: "C1", Lines: lines("P1", 3)})
	if err == nil {
		t.Fatalf("expected the first stock update to fail")
	}

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatalf("reconciliation was not applied")
	}
	if got := f.catalog.stock(t, "P1"); got != 2 {
		t.Fatalf("P1 stock = %d, want 2", got)
	}
}

func TestWorker_ExhaustedReconciliationIsLogged(t *testing.T) {
	tt := newTestTelemetry(t)
	f := newFixture(t, productSeed{"P1", "10.00", 5})
	f.catalog.updateErr = errors.New("catalog unavailable")
	f.catalog.failUpdates = -1

	bus := outbox.NewBus(tt.tel)
	reconcile := apporder.NewReconcileStockUseCase(f.catalog, 2, time.Millisecond, tt.tel)
	apporder.NewWorker(bus, reconcile, tt.tel).Start()
	bus.Start(context.Background())

	uc := apporder.NewPlaceOrderUseCase(f.customers, f.catalog, f.orders, bus, tt.tel)
	if _, err := uc.Execute(context.Background(), apporder.PlaceOrderInput{CustomerID: "C1", Lines: lines("P1", 3)}); err == nil {
		t.Fatalf("expected a post-commit failure")
	}

	// Stop drains the queue, so the handler has finished once it returns.
	if err := bus.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if n := tt.logs.FilterMessage("stock_reconciliation_exhausted").Len(); n != 1 {
		t.Fatalf("stock_reconciliation_exhausted logged %d times, want 1", n)
	}
}
