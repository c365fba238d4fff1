package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/perrystore/storefront/internal/messaging"
	"github.com/perrystore/storefront/internal/notify"
	"github.com/perrystore/storefront/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "notifier", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	brokers := strings.Split(kafkaBrokers, ",")

	resendAPIKey := os.Getenv("RESEND_API_KEY")
	if resendAPIKey == "" {
		logger.Error("RESEND_API_KEY environment variable is required")
		os.Exit(1)
	}

	wigalAPIKey := os.Getenv("WIGAL_API_KEY")
	if wigalAPIKey == "" {
		logger.Error("WIGAL_API_KEY environment variable is required")
		os.Exit(1)
	}

	senderID := os.Getenv("WIGAL_SENDER_ID")
	if senderID == "" {
		senderID = "PerryStore"
	}

	fromEmail := os.Getenv("RESEND_FROM_EMAIL")
	if fromEmail == "" {
		fromEmail = "Perry Store <noreply@perrystore.com>"
	}

	baseURL := os.Getenv("APP_BASE_URL")
	if baseURL == "" {
		logger.Error("APP_BASE_URL environment variable is required")
		os.Exit(1)
	}

	email := notify.NewEmailClient(os.Getenv("RESEND_BASE_URL"), resendAPIKey, fromEmail)
	sms := notify.NewSMSClient(os.Getenv("WIGAL_BASE_URL"), wigalAPIKey, senderID)
	handler := notify.NewHandler(email, sms, baseURL, logger)

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderConfirmed, "order-notifier")
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

	logger.Info("starting order notifier", "brokers", brokers)

	if err := consumer.Consume(runCtx, handler.Handle); err != nil {
		if runCtx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
