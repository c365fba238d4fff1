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

	"github.com/perrystore/storefront/internal/checkout"
	"github.com/perrystore/storefront/internal/ledger"
	"github.com/perrystore/storefront/internal/messaging"
	"github.com/perrystore/storefront/internal/orders"
	"github.com/perrystore/storefront/internal/paystack"
	"github.com/perrystore/storefront/internal/reconcile"
	"github.com/perrystore/storefront/internal/refund"
	"github.com/perrystore/storefront/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

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

	webhookSecret := os.Getenv("PAYSTACK_WEBHOOK_SECRET")
	if webhookSecret == "" {
		webhookSecret = secretKey
	}

	baseURL := os.Getenv("APP_BASE_URL")
	if baseURL == "" {
		logger.Error("APP_BASE_URL environment variable is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	gateway := paystack.NewClient(os.Getenv("PAYSTACK_BASE_URL"), secretKey, webhookSecret, httpClient)

	reconcileRequests := messaging.NewProducer(brokers, messaging.TopicPaymentReconcile)
	defer func() { _ = reconcileRequests.Close() }()

	orderConfirmed := messaging.NewProducer(brokers, messaging.TopicOrderConfirmed)
	defer func() { _ = orderConfirmed.Close() }()

	orderRepo := orders.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)

	reconciler := reconcile.NewReconciler(gateway, ledgerRepo, orderRepo, orderConfirmed, logger)

	checkoutHandler := checkout.NewHandler(orderRepo, ledgerRepo, gateway, baseURL, logger)
	paymentsHandler := reconcile.NewHandler(reconciler, gateway, reconcileRequests, logger)
	refundHandler := refund.NewHandler(ledgerRepo, orderRepo, gateway, logger)
	ordersHandler := orders.NewHandler(orderRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(checkoutHandler.HandleCheckout))
	mux.HandleFunc("GET /payments/verify", telemetry.WithHTTPRoute(paymentsHandler.HandleVerify))
	mux.HandleFunc("POST /payments/webhook", telemetry.WithHTTPRoute(paymentsHandler.HandleWebhook))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("GET /orders/number/{orderNumber}", telemetry.WithHTTPRoute(ordersHandler.HandleTrack))
	mux.HandleFunc("GET /admin/orders", telemetry.WithHTTPRoute(ordersHandler.HandleList))
	mux.HandleFunc("GET /admin/orders/stats", telemetry.WithHTTPRoute(ordersHandler.HandleStats))
	mux.HandleFunc("PATCH /admin/orders/{id}/status", telemetry.WithHTTPRoute(ordersHandler.HandleUpdateStatus))
	mux.HandleFunc("POST /admin/payments/reconcile", telemetry.WithHTTPRoute(paymentsHandler.HandleAdminReconcile))
	mux.HandleFunc("POST /admin/refunds", telemetry.WithHTTPRoute(refundHandler.HandleRefund))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting api service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
