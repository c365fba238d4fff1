// Package checkout turns a finalized cart into an order, a pending ledger
// entry and a hosted-payment redirect.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perrystore/storefront/internal/domain"
	"github.com/perrystore/storefront/internal/money"
	"github.com/perrystore/storefront/internal/orders"
	"github.com/perrystore/storefront/internal/paystack"
)

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
}

type Ledger interface {
	Create(ctx context.Context, txn *domain.Transaction) error
}

type Gateway interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error)
}

type Handler struct {
	orders    OrderStore
	ledger    Ledger
	gateway   Gateway
	baseURL   string
	validate  *Validator
	logger    *slog.Logger
}

// NewHandler builds the checkout orchestrator. baseURL is the public origin
// the gateway redirects back to after payment.
func NewHandler(orderStore OrderStore, ledger Ledger, gateway Gateway, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		orders:   orderStore,
		ledger:   ledger,
		gateway:  gateway,
		baseURL:  baseURL,
		validate: NewValidator(),
		logger:   logger,
	}
}

type checkoutResponse struct {
	OrderID          string `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

// HandleCheckout runs the checkout sequence: totals, order, gateway
// transaction, ledger entry, payment URL. The client keeps its cart until
// it sees a success response, so any failure here is safely retryable.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if fields, err := h.validate.Check(req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return
	}

	order := buildOrder(req, time.Now().UTC())

	if err := h.createOrder(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	reference := domain.NewPaymentReference(order.ID)
	callback := h.baseURL + "/payments/verify?reference=" + url.QueryEscape(reference)

	init, err := h.gateway.Initialize(r.Context(), paystack.InitializeRequest{
		Email:         order.CustomerEmail,
		AmountPesewas: money.GhsToPesewas(order.Total),
		Reference:     reference,
		CallbackURL:   callback,
		Metadata: paystack.Metadata{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			UserID:       order.UserID,
			CustomerName: order.CustomerName,
		},
	})
	if err != nil {
		h.logger.Error("failed to initialize payment", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, gatewayMessage(err))
		return
	}

	txn := &domain.Transaction{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reference: reference,
		Amount:    order.Total,
		Currency:  domain.Currency,
		Status:    domain.TransactionStatusPending,
		Gateway:   "paystack",
		CreatedAt: time.Now().UTC(),
	}
	if err := h.ledger.Create(r.Context(), txn); err != nil {
		h.logger.Error("failed to record transaction", "error", err,
			"order_id", order.ID, "reference", reference)
		h.writeError(w, http.StatusInternalServerError, "failed to record transaction")
		return
	}

	h.logger.Info("checkout initialized",
		"order_id", order.ID, "order_number", order.OrderNumber,
		"reference", reference, "total", order.Total)

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data": checkoutResponse{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			Reference:        reference,
			AuthorizationURL: init.AuthorizationURL,
			AccessCode:       init.AccessCode,
		},
	})
}

// createOrder retries once on an order-number collision; the suffix is only
// three characters, so busy days will occasionally hit one.
func (h *Handler) createOrder(ctx context.Context, order *domain.Order) error {
	err := h.orders.Create(ctx, order)
	if errors.Is(err, orders.ErrDuplicateOrderNumber) {
		order.OrderNumber = domain.NewOrderNumber(time.Now().UTC())
		err = h.orders.Create(ctx, order)
	}
	return err
}

func buildOrder(req CheckoutRequest, now time.Time) *domain.Order {
	items := make([]domain.OrderItem, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			ImageURL:  item.ImageURL,
		})
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	userID := req.UserID
	if userID == "" {
		userID = "guest"
	}

	shippingCost := shippingCostFor(req.ShippingMethod)
	discount := req.Discount

	return &domain.Order{
		OrderNumber:   domain.NewOrderNumber(now),
		UserID:        userID,
		CustomerEmail: req.Email,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Items:         items,
		Subtotal:      subtotal,
		ShippingCost:  shippingCost,
		Discount:      discount,
		Total:         subtotal.Add(shippingCost).Sub(discount),
		Currency:      domain.Currency,
		Status:        domain.OrderStatusPlaced,
		PaymentStatus: domain.PaymentStatusPending,
		ShippingAddress: domain.ShippingAddress{
			FullName:             req.ShippingAddress.FullName,
			PhoneNumber:          req.ShippingAddress.PhoneNumber,
			AddressLine1:         req.ShippingAddress.AddressLine1,
			AddressLine2:         req.ShippingAddress.AddressLine2,
			City:                 req.ShippingAddress.City,
			Region:               req.ShippingAddress.Region,
			DigitalAddress:       req.ShippingAddress.DigitalAddress,
			DeliveryInstructions: req.ShippingAddress.DeliveryInstructions,
		},
		ShippingMethod: req.ShippingMethod,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// shippingCostFor prices the shipping method. Standard delivery is free;
// express is a flat fee.
func shippingCostFor(method string) decimal.Decimal {
	if method == "Express Delivery" {
		return decimal.NewFromInt(30)
	}
	return decimal.Zero
}

func gatewayMessage(err error) string {
	var apiErr *paystack.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("payment initialization failed: %s", apiErr.Message)
	}
	return "failed to initialize payment"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
