// Package reconcile owns the order/payment reconciliation workflow: fetch
// gateway truth for a payment reference and apply it to the transaction
// ledger and the order, idempotently. There is exactly one implementation;
// the verify endpoint runs it inline and every other trigger (webhook,
// admin re-verify) enqueues a request for the worker.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/perrystore/storefront/internal/domain"
	"github.com/perrystore/storefront/internal/money"
	"github.com/perrystore/storefront/internal/orders"
	"github.com/perrystore/storefront/internal/paystack"
)

// ErrTransactionNotFound means no payment attempt with the given reference
// exists in the ledger. Terminal: retrying will not help.
var ErrTransactionNotFound = errors.New("transaction not found")

type Gateway interface {
	Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error)
}

type Ledger interface {
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	MarkSuccess(ctx context.Context, reference, channel string, paidAt time.Time, gatewayResponse json.RawMessage) (bool, error)
	MarkFailed(ctx context.Context, reference string, gatewayResponse json.RawMessage) (bool, error)
}

type OrderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	MarkPaid(ctx context.Context, orderID, paymentMethod string, paidAt time.Time, reference string) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID, reference string) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Outcome is the normalized result returned to whichever trigger asked.
// Amount is back in GHS regardless of the gateway's pesewa representation.
type Outcome struct {
	Success   bool            `json:"success"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Channel   string          `json:"channel,omitempty"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	Message   string          `json:"message,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
}

type Reconciler struct {
	gateway Gateway
	ledger  Ledger
	orders  OrderStore
	events  Publisher
	logger  *slog.Logger
	counter metric.Int64Counter
}

// NewReconciler wires the workflow. events may be nil when no confirmation
// notifications should be published (tests, one-off admin tooling).
func NewReconciler(gateway Gateway, ledger Ledger, orderStore OrderStore, events Publisher, logger *slog.Logger) *Reconciler {
	meter := otel.Meter("reconcile")
	counter, err := meter.Int64Counter("payment_reconciliations_total",
		metric.WithDescription("Reconciliation runs by gateway status"))
	if err != nil {
		logger.Error("failed to create reconciliation counter", "error", err)
	}

	return &Reconciler{
		gateway: gateway,
		ledger:  ledger,
		orders:  orderStore,
		events:  events,
		logger:  logger,
		counter: counter,
	}
}

// Reconcile fetches the gateway's verdict for reference and applies it.
// Safe to call any number of times for the same reference: every write is
// conditional on prior state, so a replay changes nothing, and a crash
// between the ledger and order writes is repaired by the next run.
func (r *Reconciler) Reconcile(ctx context.Context, reference string) (*Outcome, error) {
	verification, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("verify %s with gateway: %w", reference, err)
	}

	txn, err := r.ledger.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", reference, err)
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}

	if r.counter != nil {
		r.counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("gateway_status", verification.Status)))
	}

	if verification.Status == paystack.VerifyStatusSuccess {
		return r.applySuccess(ctx, txn, verification)
	}
	return r.applyFailure(ctx, txn, verification)
}

func (r *Reconciler) applySuccess(ctx context.Context, txn *domain.Transaction, v *paystack.VerifyResult) (*Outcome, error) {
	applied, err := r.ledger.MarkSuccess(ctx, v.Reference, v.Channel, v.PaidAt, v.Raw)
	if err != nil {
		return nil, fmt.Errorf("mark transaction %s success: %w", v.Reference, err)
	}

	method := ChannelLabel(v.Channel)

	orderApplied, err := r.orders.MarkPaid(ctx, txn.OrderID, method, v.PaidAt, v.Reference)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			// The order was created before the transaction, so this should
			// not happen; record it loudly and still report the payment.
			r.logger.Error("order missing for confirmed payment",
				"order_id", txn.OrderID, "reference", v.Reference)
		} else {
			return nil, fmt.Errorf("mark order %s paid: %w", txn.OrderID, err)
		}
	}

	// Publish the confirmation only on the run that actually flipped the
	// order, so the customer is notified once.
	if orderApplied && r.events != nil {
		event := domain.OrderConfirmedEvent{
			OrderID:       txn.OrderID,
			PaymentMethod: method,
			PaidAt:        v.PaidAt,
		}
		if order, err := r.orders.GetByID(ctx, txn.OrderID); err == nil && order != nil {
			event.OrderNumber = order.OrderNumber
			event.CustomerEmail = order.CustomerEmail
			event.CustomerName = order.CustomerName
			event.CustomerPhone = order.CustomerPhone
			event.Total = order.Total
		}
		if err := r.events.Publish(ctx, txn.OrderID, event); err != nil {
			r.logger.Error("failed to publish order confirmed event",
				"error", err, "order_id", txn.OrderID)
		}
	}

	r.logger.Info("payment confirmed",
		"reference", v.Reference, "order_id", txn.OrderID, "channel", v.Channel,
		"ledger_applied", applied, "order_applied", orderApplied)

	paidAt := v.PaidAt
	return &Outcome{
		Success:   true,
		Status:    v.Status,
		Reference: v.Reference,
		Amount:    money.PesewasToGhs(v.AmountPesewas),
		Channel:   v.Channel,
		PaidAt:    &paidAt,
		Message:   v.GatewayResponse,
		OrderID:   txn.OrderID,
	}, nil
}

func (r *Reconciler) applyFailure(ctx context.Context, txn *domain.Transaction, v *paystack.VerifyResult) (*Outcome, error) {
	if _, err := r.ledger.MarkFailed(ctx, v.Reference, v.Raw); err != nil {
		return nil, fmt.Errorf("mark transaction %s failed: %w", v.Reference, err)
	}

	if _, err := r.orders.MarkPaymentFailed(ctx, txn.OrderID, v.Reference); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			r.logger.Error("order missing for failed payment",
				"order_id", txn.OrderID, "reference", v.Reference)
		} else {
			return nil, fmt.Errorf("mark order %s payment failed: %w", txn.OrderID, err)
		}
	}

	r.logger.Info("payment not successful",
		"reference", v.Reference, "order_id", txn.OrderID, "gateway_status", v.Status)

	return &Outcome{
		Success:   false,
		Status:    v.Status,
		Reference: v.Reference,
		Amount:    money.PesewasToGhs(v.AmountPesewas),
		Channel:   v.Channel,
		Message:   v.GatewayResponse,
		OrderID:   txn.OrderID,
	}, nil
}

// ChannelLabel maps a gateway channel code to the label customers see.
func ChannelLabel(channel string) string {
	switch channel {
	case "mobile_money":
		return "Mobile Money"
	case "bank_transfer":
		return "Bank Transfer"
	case "card":
		return "Card"
	}
	if channel == "" {
		return "Paystack"
	}
	return channel
}
