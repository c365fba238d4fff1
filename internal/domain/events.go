package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconcileRequestedEvent asks the reconciliation worker to fetch gateway
// truth for one payment reference. Published keyed by the reference so all
// requests for the same payment land on one partition and run in order.
type ReconcileRequestedEvent struct {
	Reference   string    `json:"reference"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// Webhook / admin trigger names recorded on ReconcileRequestedEvent.
const (
	TriggerWebhook = "webhook"
	TriggerAdmin   = "admin"
)

// OrderConfirmedEvent is published exactly once per order, when the
// reconciliation workflow first confirms payment. The notifier turns it
// into the customer email and SMS.
type OrderConfirmedEvent struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerEmail string          `json:"customer_email"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	PaidAt        time.Time       `json:"paid_at"`
}
