package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testTelemetry struct {
	tel   observability.Observability
	logs  *observer.ObservedLogs
	spans *tracetest.SpanRecorder
	reg   *prometheus.Registry
}

func newTestTelemetry(t *testing.T) *testTelemetry {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	reg := prometheus.NewRegistry()
	counters, histograms := prometrics.Standard(prometrics.New(reg, "", ""))

	return &testTelemetry{
		tel:   infraobs.New(oteltrace.NewWithProvider(tp, "test"), zaplogger.New(zap.New(core)), counters, histograms),
		logs:  logs,
		spans: spans,
		reg:   reg,
	}
}

// metric returns the value of a counter, or the sample count of a histogram,
// whose labels include all of labels.
func (tt *testTelemetry) metric(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := tt.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			if !containsLabels(got, labels) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
		}
	}
	return 0
}

func containsLabels(got, want map[string]string) bool {
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func (tt *testTelemetry) spanNamed(t *testing.T, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range tt.spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	t.Fatalf("no ended span named %q", name)
	return nil
}

type recordingCustomers struct {
	*memory.CustomerRepository
	mu    sync.Mutex
	calls int
}

func (r *recordingCustomers) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.CustomerRepository.FindByID(ctx, id)
}

// recordingCatalog counts calls and can fail the first failUpdates batch
// updates with updateErr.
type recordingCatalog struct {
	*memory.CatalogRepository
	mu          sync.Mutex
	findCalls   int
	updateCalls int
	updateErr   error
	failUpdates int
	applied     chan struct{}
}

func (r *recordingCatalog) FindAllByID(ctx context.Context, ids []string) ([]inventory.Product, error) {
	r.mu.Lock()
	r.findCalls++
	r.mu.Unlock()
	return r.CatalogRepository.FindAllByID(ctx, ids)
}

func (r *recordingCatalog) UpdateQuantity(ctx context.Context, updates []inventory.StockUpdate) error {
	r.mu.Lock()
	r.updateCalls++
	fail := r.updateErr != nil && (r.failUpdates < 0 || r.updateCalls <= r.failUpdates)
	r.mu.Unlock()
	if fail {
		return r.updateErr
	}
	if err := r.CatalogRepository.UpdateQuantity(ctx, updates); err != nil {
		return err
	}
	r.mu.Lock()
	if r.applied != nil {
		close(r.applied)
		r.applied = nil
	}
	r.mu.Unlock()
	return nil
}

func (r *recordingCatalog) calls() (find, update int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findCalls, r.updateCalls
}

func (r *recordingCatalog) stock(t *testing.T, id string) int {
	t.Helper()
	p, ok := r.Get(id)
	if !ok {
		t.Fatalf("product %s missing", id)
	}
	return p.StockQuantity
}

type recordingOrders struct {
	*memory.OrderRepository
	mu          sync.Mutex
	createCalls int
	createErr   error
	afterCreate func()
}

func (r *recordingOrders) Create(ctx context.Context, c *customer.Customer, lines []domain.Line) (*domain.Order, error) {
	r.mu.Lock()
	r.createCalls++
	r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	o, err := r.OrderRepository.Create(ctx, c, lines)
	if err == nil && r.afterCreate != nil {
		r.afterCreate()
	}
	return o, err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) published() []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domoutbox.Event(nil), p.events...)
}

type fixture struct {
	customers *recordingCustomers
	catalog   *recordingCatalog
	orders    *recordingOrders
	publisher *recordingPublisher
}

type productSeed struct {
	id    string
	price string
	stock int
}

func newFixture(t *testing.T, products ...productSeed) *fixture {
	t.Helper()

	catalog := memory.NewCatalogRepository()
	for _, p := range products {
		if err := catalog.Put(inventory.Product{
			ID:            p.id,
			Price:         decimal.RequireFromString(p.price),
			StockQuantity: p.stock,
		}); err != nil {
			t.Fatalf("seed %s: %v", p.id, err)
		}
	}

	return &fixture{
		customers: &recordingCustomers{CustomerRepository: memory.NewCustomerRepository(
			customer.Customer{ID: "C1", Name: "Ada", Email: "ada@example.com"},
		)},
		catalog:   &recordingCatalog{CatalogRepository: catalog},
		orders:    &recordingOrders{OrderRepository: memory.NewOrderRepository(nil)},
		publisher: &recordingPublisher{},
	}
}
