package order

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const workerService = "order-worker"

// Worker consumes reconciliation events from the outbox and hands them to
// the reconciliation use case.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[domain.StockReconciliationRequiredEvent, *ReconcileResult]
	tracer     observability.Tracer

	log observability.Logger
	instruments
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[domain.StockReconciliationRequiredEvent, *ReconcileResult],
	tel observability.Observability,
) *Worker {
	return &Worker{
		subscriber:  subscriber,
		useCase:     useCase,
		tracer:      observability.TracerOf(tel),
		log:         observability.LoggerOf(tel).With(observability.F("service", workerService)),
		instruments: newInstruments(tel),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(domain.StockReconciliationRequiredEvent{}.EventName(), w.handleStockReconciliationRequired)
}

func (w *Worker) handleStockReconciliationRequired(ctx context.Context, e domoutbox.Event) error {
	const useCase = "order.worker.stock_reconciliation"
	evt, ok := e.(domain.StockReconciliationRequiredEvent)
	if !ok {
		w.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", "ignored"),
		)
		return nil
	}

	ctx, span := w.tracer.Start(ctx, spanPrefix+"StockReconciliationRequired",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("order.id", evt.OrderID),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("event", e.EventName()),
		observability.F("order_id", evt.OrderID),
	)
	logger = logger.With(logctx.TraceFields(ctx)...)
	// pass logger back to ctx, so the use case and catalog can fetch the same logger
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
			observability.F("reason", evt.Reason),
		}
		if outcome == "error" {
			logger.Error("stock_reconciliation_exhausted", fields...)
			span.SetStatus(codes.Error, status)
		} else {
			logger.Info("stock_reconciliation_done", fields...)
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	res, err := w.useCase.Execute(ctx, evt)
	if err != nil {
		outcome, status = "error", "RECONCILIATION_FAILED"
		return fmt.Errorf("worker: reconcile stock: %w", err)
	}
	if res != nil {
		span.SetAttributes(attribute.Int("reconcile.attempts", res.Attempts))
	}
	return nil
}
