package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/perrystore/storefront/internal/domain"
	"github.com/perrystore/storefront/internal/money"
)

// EmailSender and SMSSender are the provider clients the handler depends on.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html, text string) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Handler turns confirmed-order events into customer notifications.
//
// Email is the primary channel: a send failure is returned so the message
// is redelivered. SMS is best effort, failures are only logged.
type Handler struct {
	email   EmailSender
	sms     SMSSender
	baseURL string
	logger  *slog.Logger
}

func NewHandler(email EmailSender, sms SMSSender, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		email:   email,
		sms:     sms,
		baseURL: baseURL,
		logger:  logger,
	}
}

func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderConfirmedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("dropping malformed order confirmation", "error", err)
		return nil
	}

	logger := h.logger.With("order_id", event.OrderID, "order_number", event.OrderNumber)

	if event.CustomerEmail != "" {
		subject := fmt.Sprintf("Order Confirmed - %s", event.OrderNumber)
		emailID, err := h.email.SendEmail(ctx, event.CustomerEmail, subject,
			h.confirmationHTML(event), h.confirmationText(event))
		if err != nil {
			return fmt.Errorf("failed to send confirmation email for order %s: %w", event.OrderID, err)
		}
		logger.Info("confirmation email sent", "email_id", emailID)
	}

	if event.CustomerPhone != "" {
		if err := h.sms.SendSMS(ctx, event.CustomerPhone, h.confirmationSMS(event)); err != nil {
			logger.Warn("failed to send confirmation sms", "error", err)
		} else {
			logger.Info("confirmation sms sent")
		}
	}

	return nil
}

func (h *Handler) trackingURL(orderNumber string) string {
	return h.baseURL + "/orders/" + orderNumber
}

func (h *Handler) confirmationSMS(event domain.OrderConfirmedEvent) string {
	return fmt.Sprintf("Thank you for your order! Order #%s (%s) has been confirmed. Track your order at %s",
		event.OrderNumber, money.FormatGHS(event.Total), h.trackingURL(event.OrderNumber))
}

func (h *Handler) confirmationText(event domain.OrderConfirmedEvent) string {
	return fmt.Sprintf("Hi %s,\n\nYour order %s has been confirmed. Total paid: %s via %s.\n\nTrack your order: %s\n\nThank you for shopping with us!",
		event.CustomerName, event.OrderNumber, money.FormatGHS(event.Total),
		event.PaymentMethod, h.trackingURL(event.OrderNumber))
}

func (h *Handler) confirmationHTML(event domain.OrderConfirmedEvent) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>Order Confirmed</h1>
  <p>Hi %s,</p>
  <p>Your order <strong>%s</strong> has been confirmed.</p>
  <p>Total paid: <strong>%s</strong> via %s.</p>
  <p><a href="%s">Track your order</a></p>
  <p>Thank you for shopping with us!</p>
</div>`,
		event.CustomerName, event.OrderNumber, money.FormatGHS(event.Total),
		event.PaymentMethod, h.trackingURL(event.OrderNumber))
}
