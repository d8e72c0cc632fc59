package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appOrder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	domainOrder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type (
	PlaceOrder = application.UseCase[appOrder.PlaceOrderInput, *domainOrder.Order]
	GetOrder   = application.UseCase[string, *domainOrder.Order]
)

type Handler struct {
	placeOrder PlaceOrder
	getOrder   GetOrder
	tracer     trace.Tracer
	log        observability.Logger
	requests   observability.Counter
	duration   observability.Histogram
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerTenantID       = "X-Tenant-ID"
	tracerName           = "minishop.http"
	maxBodyBytes         = 1 << 20
)

type Option func(*Handler)

// WithTracerProvider overrides the global tracer provider used for server spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handler) {
		if tp != nil {
			h.tracer = tp.Tracer(tracerName)
		}
	}
}

func NewHandler(placeOrder PlaceOrder, getOrder GetOrder, tel observability.Observability, opts ...Option) *Handler {
	metrics := observability.MetricsOf(tel)
	h := &Handler{
		placeOrder: placeOrder,
		getOrder:   getOrder,
		tracer:     otel.Tracer(tracerName),
		log:        observability.LoggerOf(tel).With(observability.F("component", componentHTTPHandler)),
		requests:   metrics.Counter(observability.MHTTPRequests),
		duration:   metrics.Histogram(observability.MHTTPRequestDuration),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.muxHandle(mux, http.MethodPost, "/orders", h.handlePlaceOrder)
	h.muxHandle(mux, http.MethodGet, "/orders/{id}", h.handleGetOrder)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

// muxHandle registers handler for method and route. The route template doubles
// as the low-cardinality label for metrics and span names.
func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	// Trace → Request Logger → Metrics → Access Log → Handler
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerTenantID) },
		)(
			h.withHTTPMetrics(
				h.withAccessLog(handler),
			),
		),
	)

	mux.Handle(method+" "+route, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	}))
}

type lineRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type placeOrderRequest struct {
	CustomerID string        `json:"customer_id"`
	Products   []lineRequest `json:"products"`
}

type lineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type orderResponse struct {
	ID             string         `json:"id"`
	CustomerID     string         `json:"customer_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Total          string         `json:"total"`
	Lines          []lineResponse `json:"lines"`
	Reconciliation string         `json:"reconciliation,omitempty"`
}

func toOrderResponse(o *domainOrder.Order) orderResponse {
	lines := make([]lineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: formatMoney(l.UnitPrice),
		})
	}
	return orderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		CreatedAt:  o.CreatedAt,
		Total:      formatMoney(o.Total()),
		Lines:      lines,
	}
}

// formatMoney renders at least two decimal places and never rounds away
// precision the stored price carries.
func formatMoney(d decimal.Decimal) string {
	places := int32(2)
	if exp := -d.Exponent(); exp > places {
		places = exp
	}
	return d.StringFixed(places)
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}

	lines := make([]domainOrder.LineRequest, 0, len(req.Products))
	for _, p := range req.Products {
		lines = append(lines, domainOrder.LineRequest{ProductID: p.ID, Quantity: p.Quantity})
	}

	placed, err := h.placeOrder.Execute(r.Context(), appOrder.PlaceOrderInput{
		CustomerID: req.CustomerID,
		Lines:      lines,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(placed))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.getOrder.Execute(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		route := routeFromContext(parentCtx)

		ctx, span := h.tracer.Start(parentCtx,
			r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
		if lrw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(lrw.status))
		}
	})
}

// withHTTPMetrics records RED metrics with method, route and status labels.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.requests.Add(1, labels...)
		h.duration.Observe(time.Since(start).Seconds(), labels...)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if decoder.More() {
		return errors.New("decode body: unexpected data after JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ProductID string `json:"product_id,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		postCommit   *domainOrder.PostCommitStockUpdateError
		insufficient *domainOrder.InsufficientStockError
		notFound     *domainOrder.ProductNotFoundError
	)

	switch {
	case errors.As(err, &postCommit):
		logctx.FromOr(r.Context(), h.log).Warn("order_stock_reconciliation_pending",
			observability.F("order_id", postCommit.Order.ID),
			observability.F("error", err),
		)
		resp := toOrderResponse(postCommit.Order)
		resp.Reconciliation = "pending"
		writeJSON(w, http.StatusAccepted, resp)
	case errors.As(err, &insufficient):
		available := insufficient.Available
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     "insufficient_stock",
			Message:   err.Error(),
			ProductID: insufficient.ProductID,
			Available: &available,
		})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error:     "product_not_found",
			Message:   err.Error(),
			ProductID: notFound.ProductID,
		})
	case errors.Is(err, domainOrder.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, "customer_not_found", err)
	case errors.Is(err, domainOrder.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err)
	case errors.Is(err, domainOrder.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		logctx.FromOr(r.Context(), h.log).Error("request_failed", observability.F("error", err))
		writeError(w, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
