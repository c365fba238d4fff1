package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "placed"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Currency is fixed; the store sells in Ghana Cedis only.
const Currency = "GHS"

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
}

type ShippingAddress struct {
	FullName             string `json:"full_name"`
	PhoneNumber          string `json:"phone_number"`
	AddressLine1         string `json:"address_line1"`
	AddressLine2         string `json:"address_line2,omitempty"`
	City                 string `json:"city"`
	Region               string `json:"region"`
	DigitalAddress       string `json:"digital_address,omitempty"`
	DeliveryInstructions string `json:"delivery_instructions,omitempty"`
}

// TimelineEvent is one row of an order's append-only status history,
// returned newest-first.
type TimelineEvent struct {
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
	Location  string      `json:"location,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Order carries two independent status axes: Status tracks fulfilment,
// PaymentStatus tracks money. Item name/price are snapshots taken at
// checkout and are never re-read from the product catalog.
type Order struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	UserID        string `json:"user_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone,omitempty"`

	Items []OrderItem `json:"items"`

	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`

	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	ShippingAddress ShippingAddress `json:"shipping_address"`
	ShippingMethod  string          `json:"shipping_method"`

	PaymentMethod    string `json:"payment_method,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`

	Timeline []TimelineEvent `json:"timeline,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// OrderStats is the admin dashboard summary.
type OrderStats struct {
	TotalOrders     int             `json:"total_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	PendingOrders   int             `json:"pending_orders"`
	DeliveredOrders int             `json:"delivered_orders"`
	CancelledOrders int             `json:"cancelled_orders"`
}

// orderTransitions is the legal fulfilment state machine. Cancellation is
// only possible before fulfilment starts; refunds only after payment was
// confirmed.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:         {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusRefunded},
	OrderStatusShipped:        {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:      {OrderStatusRefunded},
}

// CanTransition reports whether an order may move from one fulfilment
// status to another. Terminal statuses (cancelled, refunded) have no
// outgoing transitions.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusLabel is the customer-facing label shown in timeline notes.
func StatusLabel(status OrderStatus) string {
	switch status {
	case OrderStatusPlaced:
		return "Order Placed"
	case OrderStatusConfirmed:
		return "Payment Confirmed"
	case OrderStatusProcessing:
		return "Processing"
	case OrderStatusShipped:
		return "Shipped"
	case OrderStatusOutForDelivery:
		return "Out for Delivery"
	case OrderStatusDelivered:
		return "Delivered"
	case OrderStatusCancelled:
		return "Cancelled"
	case OrderStatusRefunded:
		return "Refunded"
	}
	return string(status)
}
