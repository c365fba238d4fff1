package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusSuccess  TransactionStatus = "success"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

// Transaction is one payment attempt in the ledger. An order may accumulate
// failed attempts but only one transaction ever reaches success. Amount is
// in GHS (major unit); the gateway's pesewas representation never leaves
// the paystack package.
type Transaction struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	UserID    string            `json:"user_id"`
	Reference string            `json:"reference"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Status    TransactionStatus `json:"status"`
	Channel   string            `json:"channel,omitempty"`
	Gateway   string            `json:"gateway"`

	// GatewayResponse is the raw verify/webhook payload as returned by
	// Paystack, kept for refunds (the gateway transaction id lives here)
	// and support lookups.
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`

	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundReason string           `json:"refund_reason,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
}
