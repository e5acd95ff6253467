package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appInventory "github.com/Zhima-Mochi/cafeteria/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/cafeteria/internal/application/order"
	appReport "github.com/Zhima-Mochi/cafeteria/internal/application/report"
	"github.com/Zhima-Mochi/cafeteria/internal/config"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	domainOrder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/id"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/memory"
	obsprovider "github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability/otelsdk"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/redisx"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/relay"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/seed"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	httppresentation "github.com/Zhima-Mochi/cafeteria/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/cafeteria/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cafeteria:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	baseLogger, err := zaplogger.New(cfg.Log.Level,
		observability.F("service", cfg.Service.Name),
		observability.F("env", cfg.Service.Env),
	)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() {
		if s, ok := baseLogger.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	}()
	systemLogger := baseLogger.With(observability.F("component", "system"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otelsdk.Setup(ctx, otelsdk.Options{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Env,
		Endpoint:       cfg.OTel.Endpoint,
		Insecure:       cfg.OTel.Insecure,
		ExportTimeout:  5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			systemLogger.Warn("tracer_shutdown_error", observability.F("error", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.Standard(prometrics.New(reg, "", ""))
	tel := obsprovider.New(oteltrace.New(cfg.Service.Name, cfg.Service.Version), baseLogger, counters, histograms)

	products, orders, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	systemLogger.Info("store_ready", observability.F("driver", cfg.Store.Driver))

	bus := outbox.NewBus(baseLogger)
	bus.Start(ctx)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		bus.Stop(sctx)
	}()

	ledger := appInventory.NewLedger(products, tel,
		appInventory.WithPublisher(bus),
		appInventory.WithLowStockThreshold(cfg.Inventory.LowStockThreshold),
	)
	orderService := appOrder.NewService(orders, ledger, id.NewUUIDGenerator(), bus, tel)
	reportService := appReport.NewService(orders, tel)

	if cfg.Catalog.Seed {
		added, err := seed.Load(ctx, ledger)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		systemLogger.Info("catalog_seeded", observability.F("added", added))
	}

	var prepare = appOrder.StartPreparationUseCase(orderService)
	if !cfg.Kitchen.AutoStart {
		prepare = nil
	}
	appOrder.NewWorker(workerpresentation.NewSubscriber(bus, "kitchen", tel), ledger, prepare, tel).Start()
	appInventory.NewWorker(workerpresentation.NewSubscriber(bus, "restock", tel),
		appInventory.RestockUseCase(ledger), cfg.Inventory.AutoRestockQty, tel).Start()

	relays, err := startRelays(cfg, bus, tel)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range relays {
			if err := r.Close(); err != nil {
				systemLogger.Warn("relay_close_error", observability.F("error", err.Error()))
			}
		}
	}()

	handlerOpts := []httppresentation.Option{
		httppresentation.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		httppresentation.WithRequestTimeout(cfg.HTTP.RequestTimeout),
	}
	if cfg.Redis.Addr != "" {
		rdb := redisx.New(cfg.Redis.Addr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			return err
		}
		cache := redisx.NewStatusCache(rdb, cfg.Redis.StatusTTL, tel)
		cache.Start(workerpresentation.NewSubscriber(bus, "status_cache", tel))
		handlerOpts = append(handlerOpts, httppresentation.WithStatusLookup(
			func(ctx context.Context, orderID string) (domainOrder.Status, time.Time, bool, error) {
				e, ok, err := cache.Lookup(ctx, orderID)
				return e.Status, e.UpdatedAt, ok, err
			}))
		systemLogger.Info("status_cache_enabled", observability.F("addr", cfg.Redis.Addr))
	}

	handler := httppresentation.NewHandler(orderService, ledger, reportService, baseLogger, tel, handlerOpts...)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.F("error", err.Error()))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
		return err
	}
	systemLogger.Info("http_server_stopped")
	return nil
}

// openStore picks the repositories for cfg.Store.Driver.
func openStore(ctx context.Context, cfg *config.Config) (catalog.Repository, domainOrder.Repository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return postgres.NewProductRepository(pool), postgres.NewOrderRepository(pool), pool.Close, nil
	default:
		return memory.NewProductRepository(), memory.NewOrderRepository(), func() {}, nil
	}
}

// startRelays wires the optional broker sinks. Each relay gets its own decorated subscriber.
func startRelays(cfg *config.Config, bus *outbox.Bus, tel observability.Observability) ([]*relay.Relay, error) {
	var relays []*relay.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		r := relay.New(relay.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic), relay.AllEvents, relay.Single, tel)
		r.Start(workerpresentation.NewSubscriber(bus, "relay.kafka", tel))
		relays = append(relays, r)
	}
	if cfg.RabbitMQ.URL != "" {
		sink, err := relay.DialRabbit(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			for _, r := range relays {
				_ = r.Close()
			}
			return nil, err
		}
		r := relay.New(sink, []string{domainOrder.PaidEvent{}.EventName()}, relay.KitchenStations, tel)
		r.Start(workerpresentation.NewSubscriber(bus, "relay.rabbitmq", tel))
		relays = append(relays, r)
	}
	return relays, nil
}
