package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/perrystore/storefront/internal/domain"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrDuplicateOrderNumber = errors.New("order number already taken")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create persists the order, its line items and the seed timeline entry in
// one transaction. A colliding order number surfaces as
// ErrDuplicateOrderNumber so the caller can regenerate and retry.
func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id, customer_email, customer_name, customer_phone,
			subtotal, shipping_cost, discount, total, currency,
			status, payment_status, shipping_address, shipping_method,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`, order.ID, order.OrderNumber, order.UserID, order.CustomerEmail, order.CustomerName,
		order.CustomerPhone, order.Subtotal, order.ShippingCost, order.Discount, order.Total,
		order.Currency, order.Status, order.PaymentStatus, address, order.ShippingMethod,
		order.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateOrderNumber
		}
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, price, quantity, size, color, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New().String(), order.ID, item.ProductID, item.Name, item.Price, item.Quantity,
			item.Size, item.Color, item.ImageURL)
		if err != nil {
			return err
		}
	}

	if err := appendTimeline(ctx, tx, order.ID, domain.TimelineEvent{
		Status:    domain.OrderStatusPlaced,
		Note:      "Order placed successfully",
		CreatedAt: order.CreatedAt,
	}, ""); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *Repository) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getOne(ctx, "order_number = $1", orderNumber)
}

const orderColumns = `
	id, order_number, user_id, customer_email, customer_name, customer_phone,
	subtotal, shipping_cost, discount, total, currency,
	status, payment_status, shipping_address, shipping_method,
	payment_method, payment_reference,
	created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at`

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	if err := r.loadTimeline(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var (
		phone, method, reference sql.NullString
		address                  []byte
	)

	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.CustomerEmail, &order.CustomerName,
		&phone, &order.Subtotal, &order.ShippingCost, &order.Discount, &order.Total,
		&order.Currency, &order.Status, &order.PaymentStatus, &address, &order.ShippingMethod,
		&method, &reference,
		&order.CreatedAt, &order.UpdatedAt, &order.PaidAt, &order.ShippedAt, &order.DeliveredAt,
		&order.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	order.CustomerPhone = phone.String
	order.PaymentMethod = method.String
	order.PaymentReference = reference.String

	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}

	return order, nil
}

func (r *Repository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, price, quantity, size, color, image_url
		FROM order_items
		WHERE order_id = $1
	`, order.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity,
			&item.Size, &item.Color, &item.ImageURL); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

func (r *Repository) loadTimeline(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, note, location, created_at
		FROM order_timeline
		WHERE order_id = $1
		ORDER BY id DESC
	`, order.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ev domain.TimelineEvent
		if err := rows.Scan(&ev.Status, &ev.Note, &ev.Location, &ev.CreatedAt); err != nil {
			return err
		}
		order.Timeline = append(order.Timeline, ev)
	}

	return rows.Err()
}

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	UserID        string
	Limit         int
}

// List returns orders newest-first with their items, without timelines.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		query += fmt.Sprintf(" AND payment_status = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, price, quantity, size, color, image_url
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Name, &item.Price,
			&item.Quantity, &item.Size, &item.Color, &item.ImageURL); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (r *Repository) Stats(ctx context.Context) (*domain.OrderStats, error) {
	stats := &domain.OrderStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(total) FILTER (WHERE payment_status = 'paid'), 0),
			COUNT(*) FILTER (WHERE payment_status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM orders
	`).Scan(&stats.TotalOrders, &stats.TotalRevenue, &stats.PendingOrders,
		&stats.DeliveredOrders, &stats.CancelledOrders)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// MarkPaid flips the order to paid/confirmed and appends the payment
// timeline entry, both in one transaction. The status update only applies
// while payment is still pending and the timeline insert is deduplicated
// on the reference, so replaying the same confirmation is a no-op.
// Returns (false, ErrNotFound) when the order does not exist.
func (r *Repository) MarkPaid(ctx context.Context, orderID, paymentMethod string, paidAt time.Time, reference string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'paid', status = 'confirmed',
		    payment_method = $2, payment_reference = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
	`, orderID, paymentMethod, reference, paidAt)
	if err != nil {
		return false, err
	}

	applied, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if applied == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
	}

	if err := appendTimeline(ctx, tx, orderID, domain.TimelineEvent{
		Status:    domain.OrderStatusConfirmed,
		Note:      "Payment confirmed via " + paymentMethod,
		CreatedAt: paidAt,
	}, "payment-confirmed:"+reference); err != nil {
		return false, err
	}

	return applied > 0, tx.Commit()
}

// MarkPaymentFailed cancels an order whose payment the gateway reported as
// failed or abandoned. Conditional on payment still pending, like MarkPaid.
func (r *Repository) MarkPaymentFailed(ctx context.Context, orderID, reference string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'failed', status = 'cancelled',
		    payment_reference = $2, cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
	`, orderID, reference)
	if err != nil {
		return false, err
	}

	applied, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if applied == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
	}

	if err := appendTimeline(ctx, tx, orderID, domain.TimelineEvent{
		Status:    domain.OrderStatusCancelled,
		Note:      "Payment failed",
		CreatedAt: time.Now().UTC(),
	}, "payment-failed:"+reference); err != nil {
		return false, err
	}

	return applied > 0, tx.Commit()
}

// UpdateStatus applies an admin-driven fulfilment transition. The write is
// conditional on the status the caller read, so two admins racing on the
// same order cannot both win.
func (r *Repository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, note, location string) (bool, error) {
	set := "status = $3, updated_at = NOW()"
	switch to {
	case domain.OrderStatusShipped:
		set += ", shipped_at = NOW()"
	case domain.OrderStatusDelivered:
		set += ", delivered_at = NOW()"
	case domain.OrderStatusCancelled:
		set += ", cancelled_at = NOW()"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET `+set+` WHERE id = $1 AND status = $2`,
		orderID, from, to)
	if err != nil {
		return false, err
	}

	applied, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if applied == 0 {
		return false, nil
	}

	if note == "" {
		note = domain.StatusLabel(to)
	}
	if err := appendTimeline(ctx, tx, orderID, domain.TimelineEvent{
		Status:    to,
		Note:      note,
		Location:  location,
		CreatedAt: time.Now().UTC(),
	}, ""); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// MarkRefunded moves a post-confirmation order to refunded on both axes.
func (r *Repository) MarkRefunded(ctx context.Context, orderID string, amount decimal.Decimal, reason, dedupKey string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = 'refunded', payment_status = 'refunded', updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('placed', 'cancelled', 'refunded')
	`, orderID)
	if err != nil {
		return false, err
	}

	applied, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if applied == 0 {
		return false, tx.Commit()
	}

	note := fmt.Sprintf("Refund of %s GHS initiated", amount.StringFixed(2))
	if reason != "" {
		note += ": " + reason
	}
	if err := appendTimeline(ctx, tx, orderID, domain.TimelineEvent{
		Status:    domain.OrderStatusRefunded,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}, dedupKey); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// appendTimeline inserts one history row. A non-empty dedupKey makes the
// append idempotent: replays hit the (order_id, dedup_key) unique index
// and are dropped instead of duplicating the entry.
func appendTimeline(ctx context.Context, tx *sql.Tx, orderID string, ev domain.TimelineEvent, dedupKey string) error {
	key := sql.NullString{String: dedupKey, Valid: dedupKey != ""}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_timeline (order_id, status, note, location, created_at, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id, dedup_key) DO NOTHING
	`, orderID, ev.Status, ev.Note, ev.Location, ev.CreatedAt, key)
	return err
}
