// Package ledger persists one transaction record per payment attempt.
// Terminal transitions are conditional writes keyed on the current status,
// which is what makes the reconciliation workflow safe to replay.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perrystore/storefront/internal/domain"
)

var ErrNotRefundable = errors.New("transaction is not refundable")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a pending ledger entry for a freshly initialized gateway
// transaction.
func (r *Repository) Create(ctx context.Context, txn *domain.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, order_id, user_id, reference, amount, currency, status, gateway,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, txn.ID, txn.OrderID, txn.UserID, txn.Reference, txn.Amount, txn.Currency,
		txn.Status, txn.Gateway, txn.CreatedAt)
	return err
}

const transactionColumns = `
	id, order_id, user_id, reference, amount, currency, status, channel, gateway,
	gateway_response, refund_amount, refund_reason,
	created_at, updated_at, paid_at, refunded_at`

// GetByReference returns the ledger entry for a payment reference, or
// (nil, nil) when no attempt with that reference exists.
func (r *Repository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return r.getOne(ctx, "reference = $1", reference)
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	var (
		channel, refundReason sql.NullString
		response              []byte
		refundAmount          decimal.NullDecimal
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where, arg,
	).Scan(
		&txn.ID, &txn.OrderID, &txn.UserID, &txn.Reference, &txn.Amount, &txn.Currency,
		&txn.Status, &channel, &txn.Gateway, &response, &refundAmount, &refundReason,
		&txn.CreatedAt, &txn.UpdatedAt, &txn.PaidAt, &txn.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	txn.Channel = channel.String
	txn.RefundReason = refundReason.String
	txn.GatewayResponse = json.RawMessage(response)
	if refundAmount.Valid {
		txn.RefundAmount = &refundAmount.Decimal
	}

	return txn, nil
}

// MarkSuccess records the gateway's confirmation. Applies only while the
// entry is still pending; a replay returns applied=false without touching
// the row.
func (r *Repository) MarkSuccess(ctx context.Context, reference, channel string, paidAt time.Time, gatewayResponse json.RawMessage) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'success', channel = $2, paid_at = $3, gateway_response = $4, updated_at = NOW()
		WHERE reference = $1 AND status = 'pending'
	`, reference, channel, paidAt, []byte(gatewayResponse))
	if err != nil {
		return false, err
	}

	applied, err := result.RowsAffected()
	return applied > 0, err
}

// MarkFailed records a failed or abandoned charge, conditional like
// MarkSuccess.
func (r *Repository) MarkFailed(ctx context.Context, reference string, gatewayResponse json.RawMessage) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'failed', gateway_response = $2, updated_at = NOW()
		WHERE reference = $1 AND status = 'pending'
	`, reference, []byte(gatewayResponse))
	if err != nil {
		return false, err
	}

	applied, err := result.RowsAffected()
	return applied > 0, err
}

// MarkRefunded moves a successful transaction to refunded. Refunding
// anything but a success is ErrNotRefundable.
func (r *Repository) MarkRefunded(ctx context.Context, id string, amount decimal.Decimal, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'refunded', refund_amount = $2, refund_reason = $3,
		    refunded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'success'
	`, id, amount, reason)
	if err != nil {
		return err
	}

	applied, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if applied == 0 {
		return ErrNotRefundable
	}
	return nil
}
