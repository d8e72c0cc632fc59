package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appOrder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/config"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/cache"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/messaging"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceVersion = "0.1.0"

type stores struct {
	customers customer.Lookup
	catalog   inventory.Catalog
	orders    domainOrder.Store
	closers   []io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := logging.NewLogger(cfg.ServiceName, cfg.Env, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)
	logger := zaplogger.New(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service_failed", observability.F("error", err))
		stop()
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger observability.Logger) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Env,
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
	})
	if err != nil {
		return err
	}

	counters, histograms := prometrics.Standard(prometrics.New(prometheus.DefaultRegisterer, "", ""))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range st.closers {
			if err := c.Close(); err != nil {
				logger.Warn("close_failed", observability.F("error", err))
			}
		}
	}()

	bus := outbox.NewBus(tel)
	publisher, brokerCloser, err := openPublisher(cfg, bus)
	if err != nil {
		return err
	}
	if brokerCloser != nil {
		st.closers = append(st.closers, brokerCloser)
	}

	placeOrder := appOrder.NewPlaceOrderUseCase(st.customers, st.catalog, st.orders, publisher, tel,
		appOrder.WithCommitTimeout(cfg.CommitTimeout),
	)
	getOrder := appOrder.NewGetOrderUseCase(st.orders, tel)
	reconcile := appOrder.NewReconcileStockUseCase(st.catalog, cfg.ReconcileAttempts, cfg.ReconcileBackoff, tel)
	appOrder.NewWorker(bus, reconcile, tel).Start()
	bus.Start(ctx)

	handler := httppresentation.NewHandler(placeOrder, getOrder, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("store_backend", cfg.StoreBackend),
			observability.F("event_broker", cfg.EventBroker),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http_server_error", observability.F("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		logger.Info("http_server_stopped")
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		logger.Warn("event_bus_stop_error", observability.F("error", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing_shutdown_error", observability.F("error", err))
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger observability.Logger) (*stores, error) {
	st := &stores{}
	ids := id.NewUUIDGenerator()

	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db)
		if cfg.DBMigrate {
			if err := postgres.EnsureSchema(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		st.customers = postgres.NewCustomerRepository(db)
		st.catalog = postgres.NewCatalogRepository(db)
		st.orders = postgres.NewOrderRepository(db, ids)
	default:
		customers := memory.NewCustomerRepository()
		catalog := memory.NewCatalogRepository()
		if cfg.SeedDemoData {
			if err := seedDemoData(customers, catalog); err != nil {
				return nil, err
			}
			logger.Info("demo_data_seeded")
		}
		st.customers = customers
		st.catalog = catalog
		st.orders = memory.NewOrderRepository(ids)
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, client)
		st.customers = cache.NewCachedCustomerLookup(
			st.customers,
			cache.NewRedisCache(client, cfg.ServiceName+":", cfg.CustomerCacheTTL),
			logger,
		)
	}
	return st, nil
}

// openPublisher returns the publisher used by the use cases. The local bus
// always receives events so the reconciliation worker sees them; a configured
// broker receives a copy.
func openPublisher(cfg *config.Config, bus *outbox.Bus) (domoutbox.Publisher, io.Closer, error) {
	switch cfg.EventBroker {
	case config.BrokerRabbitMQ:
		rmq, err := messaging.DialRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewFanoutPublisher(bus, rmq), rmq, nil
	case config.BrokerKafka:
		kp := messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.KafkaBrokers))
		return messaging.NewFanoutPublisher(bus, kp), kp, nil
	default:
		return bus, nil, nil
	}
}

func seedDemoData(customers *memory.CustomerRepository, catalog *memory.CatalogRepository) error {
	customers.Put(customer.Customer{ID: "C1", Name: "Demo Customer", Email: "demo@example.com"})
	for _, p := range []struct {
		id    string
		price string
		stock int
	}{
		{"P1", "10.00", 5},
		{"P2", "4.50", 100},
		{"P3", "129.99", 3},
	} {
		product, err := inventory.NewProduct(p.id, decimal.RequireFromString(p.price), p.stock)
		if err != nil {
			return err
		}
		if err := catalog.Put(*product); err != nil {
			return err
		}
	}
	return nil
}
