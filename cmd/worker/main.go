package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/perrystore/storefront/internal/ledger"
	"github.com/perrystore/storefront/internal/messaging"
	"github.com/perrystore/storefront/internal/orders"
	"github.com/perrystore/storefront/internal/paystack"
	"github.com/perrystore/storefront/internal/reconcile"
	"github.com/perrystore/storefront/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	brokers := strings.Split(kafkaBrokers, ",")

	secretKey := os.Getenv("PAYSTACK_SECRET_KEY")
	if secretKey == "" {
		logger.Error("PAYSTACK_SECRET_KEY environment variable is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	gateway := paystack.NewClient(os.Getenv("PAYSTACK_BASE_URL"), secretKey, "", httpClient)

	orderConfirmed := messaging.NewProducer(brokers, messaging.TopicOrderConfirmed)
	defer func() { _ = orderConfirmed.Close() }()

	reconciler := reconcile.NewReconciler(gateway, ledger.NewRepository(db), orders.NewRepository(db), orderConfirmed, logger)
	handler := reconcile.NewWorkerHandler(reconciler, logger)

	consumer := messaging.NewConsumer(brokers, messaging.TopicPaymentReconcile, "payment-reconciler")
	defer func() { _ = consumer.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting reconciliation worker", "brokers", brokers)

	if err := consumer.Consume(runCtx, handler.Handle); err != nil {
		if runCtx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
