package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/parashop/internal/auth"
	"github.com/joao-fontenele/parashop/internal/config"
	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/events"
	"github.com/joao-fontenele/parashop/internal/fidelity"
	"github.com/joao-fontenele/parashop/internal/messaging"
	"github.com/joao-fontenele/parashop/internal/orders"
	"github.com/joao-fontenele/parashop/internal/telemetry"
)

const serviceName = "orders"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load("8081")
	if err := cfg.Require("POSTGRES_URL"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to init tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to init meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	metrics, err := fidelity.NewMetrics(otel.Meter("parashop/fidelity"))
	if err != nil {
		logger.Error("failed to create fidelity metrics", "error", err)
		os.Exit(1)
	}

	opts := []orders.Option{orders.WithMetrics(metrics)}
	if len(cfg.KafkaBrokers) > 0 {
		created := messaging.NewProducer(cfg.KafkaBrokers, domain.TopicOrderCreated)
		defer func() { _ = created.Close() }()
		statusChanged := messaging.NewProducer(cfg.KafkaBrokers, domain.TopicOrderStatusChanged,
			messaging.WithRequiredAcks(kafka.RequireAll))
		defer func() { _ = statusChanged.Close() }()
		opts = append(opts, orders.WithPublishers(created, statusChanged))
		logger.Info("publishing order events", "topics", []string{created.Topic(), statusChanged.Topic()})
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are not published")
	}

	orderService := orders.NewService(orders.NewOrderRepository(db), logger, opts...)
	ledgerRepo := fidelity.NewRepository(db)
	fidelityService := fidelity.NewService(ledgerRepo, ledgerRepo, metrics, logger)

	mux := http.NewServeMux()
	orders.NewHandler(orderService, logger).Routes(mux)
	fidelity.NewHandler(fidelityService, logger).Routes(mux)
	events.NewHandler(events.NewService(events.NewRepository(db), logger), logger).Routes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(auth.Middleware(mux), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port, "environment", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
