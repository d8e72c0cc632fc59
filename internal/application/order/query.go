package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const useCaseGetOrder = "order.get"

// GetOrderUseCase reads back a stored order.
type GetOrderUseCase struct {
	orders domain.Store
	tracer observability.Tracer
	log    observability.Logger
	instruments
}

func NewGetOrderUseCase(orders domain.Store, tel observability.Observability) *GetOrderUseCase {
	return &GetOrderUseCase{
		orders:      orders,
		tracer:      observability.TracerOf(tel),
		log:         observability.LoggerOf(tel).With(observability.F("service", orderService)),
		instruments: newInstruments(tel),
	}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"GetOrder",
		attribute.String("use_case", useCaseGetOrder),
		attribute.String("order.id", id),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()
		uc.observe(useCaseGetOrder, outcome, lat)

		logctx.FromOr(ctx, uc.log).Debug("use_case_done",
			observability.F("use_case", useCaseGetOrder),
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("order_id", id),
			observability.F("latency_seconds", lat),
		)
	}()

	if strings.TrimSpace(id) == "" {
		outcome, statusText = "rejected", "ORDER_ID_REQUIRED"
		return nil, fmt.Errorf("%w: order id is required", domain.ErrInvalidRequest)
	}

	var o *domain.Order
	err = uc.call(ctx, peerOrders, "get", func(ctx context.Context) error {
		var getErr error
		o, getErr = uc.orders.Get(ctx, id)
		return getErr
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		outcome, statusText = "rejected", "ORDER_NOT_FOUND"
		return nil, domain.ErrNotFound
	case err != nil:
		outcome, statusText = "error", "ORDER_LOAD_FAILED"
		return nil, domain.Persistence(err)
	}
	return o, nil
}
