package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perrystore/storefront/internal/domain"
	"github.com/perrystore/storefront/internal/paystack"
)

type fakeGateway struct {
	result *paystack.VerifyResult
	err    error
	calls  int
}

func (f *fakeGateway) Verify(_ context.Context, _ string) (*paystack.VerifyResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeLedger struct {
	txn          *domain.Transaction
	successCalls int
	failedCalls  int
	applied      bool
}

func (f *fakeLedger) GetByReference(_ context.Context, _ string) (*domain.Transaction, error) {
	return f.txn, nil
}

func (f *fakeLedger) MarkSuccess(_ context.Context, _, _ string, _ time.Time, _ json.RawMessage) (bool, error) {
	f.successCalls++
	applied := f.applied
	f.applied = false
	return applied, nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, _ string, _ json.RawMessage) (bool, error) {
	f.failedCalls++
	applied := f.applied
	f.applied = false
	return applied, nil
}

type fakeOrderStore struct {
	order       *domain.Order
	paidCalls   int
	failedCalls int
	applied     bool
}

func (f *fakeOrderStore) GetByID(_ context.Context, _ string) (*domain.Order, error) {
	return f.order, nil
}

func (f *fakeOrderStore) MarkPaid(_ context.Context, _, _ string, _ time.Time, _ string) (bool, error) {
	f.paidCalls++
	applied := f.applied
	f.applied = false
	return applied, nil
}

func (f *fakeOrderStore) MarkPaymentFailed(_ context.Context, _, _ string) (bool, error) {
	f.failedCalls++
	applied := f.applied
	f.applied = false
	return applied, nil
}

type fakePublisher struct {
	keys   []string
	events []any
}

func (f *fakePublisher) Publish(_ context.Context, key string, event any) error {
	f.keys = append(f.keys, key)
	f.events = append(f.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func successVerification(reference string) *paystack.VerifyResult {
	return &paystack.VerifyResult{
		ID:              12345,
		Status:          paystack.VerifyStatusSuccess,
		Reference:       reference,
		AmountPesewas:   15000,
		Channel:         "mobile_money",
		GatewayResponse: "Approved",
		PaidAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Raw:             json.RawMessage(`{"id": 12345}`),
	}
}

func TestReconcileSuccess(t *testing.T) {
	gateway := &fakeGateway{result: successVerification("PS-ord-1-1-ABC123")}
	txLedger := &fakeLedger{txn: &domain.Transaction{ID: "txn-1", OrderID: "ord-1"}, applied: true}
	store := &fakeOrderStore{
		order: &domain.Order{
			ID:            "ord-1",
			OrderNumber:   "ORD-20260301-042",
			CustomerEmail: "ama@example.com",
		},
		applied: true,
	}
	events := &fakePublisher{}

	reconciler := NewReconciler(gateway, txLedger, store, events, testLogger())

	outcome, err := reconciler.Reconcile(context.Background(), "PS-ord-1-1-ABC123")
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, "ord-1", outcome.OrderID)
	assert.Equal(t, "150.00", outcome.Amount.StringFixed(2), "15000 pesewas should come back as 150.00 GHS")
	assert.Equal(t, "mobile_money", outcome.Channel)

	require.Len(t, events.events, 1)
	assert.Equal(t, "ord-1", events.keys[0])
	event := events.events[0].(domain.OrderConfirmedEvent)
	assert.Equal(t, "ORD-20260301-042", event.OrderNumber)
	assert.Equal(t, "Mobile Money", event.PaymentMethod)
}

func TestReconcileIsIdempotent(t *testing.T) {
	gateway := &fakeGateway{result: successVerification("PS-ord-1-1-ABC123")}
	txLedger := &fakeLedger{txn: &domain.Transaction{ID: "txn-1", OrderID: "ord-1"}, applied: true}
	store := &fakeOrderStore{order: &domain.Order{ID: "ord-1"}, applied: true}
	events := &fakePublisher{}

	reconciler := NewReconciler(gateway, txLedger, store, events, testLogger())

	for i := 0; i < 3; i++ {
		outcome, err := reconciler.Reconcile(context.Background(), "PS-ord-1-1-ABC123")
		require.NoError(t, err)
		assert.True(t, outcome.Success)
	}

	// Writes run every time but only apply once, and the confirmation
	// event goes out exactly once.
	assert.Equal(t, 3, gateway.calls)
	assert.Equal(t, 3, txLedger.successCalls)
	assert.Equal(t, 3, store.paidCalls)
	assert.Len(t, events.events, 1)
}

func TestReconcileFailure(t *testing.T) {
	verification := successVerification("PS-ord-1-1-ABC123")
	verification.Status = paystack.VerifyStatusFailed
	verification.GatewayResponse = "Declined"

	gateway := &fakeGateway{result: verification}
	txLedger := &fakeLedger{txn: &domain.Transaction{ID: "txn-1", OrderID: "ord-1"}, applied: true}
	store := &fakeOrderStore{order: &domain.Order{ID: "ord-1"}, applied: true}
	events := &fakePublisher{}

	reconciler := NewReconciler(gateway, txLedger, store, events, testLogger())

	outcome, err := reconciler.Reconcile(context.Background(), "PS-ord-1-1-ABC123")
	require.NoError(t, err)

	assert.False(t, outcome.Success)
	assert.Equal(t, "Declined", outcome.Message)
	assert.Equal(t, 1, txLedger.failedCalls)
	assert.Equal(t, 1, store.failedCalls)
	assert.Empty(t, events.events, "no confirmation for failed payments")
}

func TestReconcileUnknownReference(t *testing.T) {
	gateway := &fakeGateway{result: successVerification("PS-ghost-1-ABC123")}
	txLedger := &fakeLedger{txn: nil}
	reconciler := NewReconciler(gateway, txLedger, &fakeOrderStore{}, nil, testLogger())

	_, err := reconciler.Reconcile(context.Background(), "PS-ghost-1-ABC123")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestChannelLabel(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{"mobile_money", "Mobile Money"},
		{"bank_transfer", "Bank Transfer"},
		{"card", "Card"},
		{"", "Paystack"},
		{"ussd", "ussd"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ChannelLabel(tt.channel))
	}
}
