// Package refund is the admin-initiated refund path. It fails closed:
// every precondition is checked against the ledger before the gateway is
// ever called.
package refund

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/perrystore/storefront/internal/domain"
	"github.com/perrystore/storefront/internal/ledger"
	"github.com/perrystore/storefront/internal/money"
	"github.com/perrystore/storefront/internal/paystack"
)

type Ledger interface {
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	MarkRefunded(ctx context.Context, id string, amount decimal.Decimal, reason string) error
}

type OrderStore interface {
	MarkRefunded(ctx context.Context, orderID string, amount decimal.Decimal, reason, dedupKey string) (bool, error)
}

type Gateway interface {
	Refund(ctx context.Context, req paystack.RefundRequest) (*paystack.RefundResult, error)
}

type Handler struct {
	ledger  Ledger
	orders  OrderStore
	gateway Gateway
	logger  *slog.Logger
}

func NewHandler(txLedger Ledger, orderStore OrderStore, gateway Gateway, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:  txLedger,
		orders:  orderStore,
		gateway: gateway,
		logger:  logger,
	}
}

type refundRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	MerchantNote  string          `json:"merchant_note"`
}

func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionID == "" || req.Reason == "" {
		h.writeError(w, http.StatusBadRequest, "transaction_id and reason are required")
		return
	}
	if req.Amount.Sign() < 0 {
		h.writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	txn, err := h.ledger.GetByID(r.Context(), req.TransactionID)
	if err != nil {
		h.logger.Error("failed to load transaction", "error", err, "transaction_id", req.TransactionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if txn == nil {
		h.writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	if txn.Status == domain.TransactionStatusRefunded {
		h.writeError(w, http.StatusBadRequest, "transaction already refunded")
		return
	}
	if txn.Status != domain.TransactionStatusSuccess {
		h.writeError(w, http.StatusBadRequest, "only successful transactions can be refunded")
		return
	}
	if req.Amount.GreaterThan(txn.Amount) {
		h.writeError(w, http.StatusBadRequest, "refund amount exceeds transaction amount")
		return
	}

	gatewayID := gatewayTransactionID(txn.GatewayResponse)
	if gatewayID == "" {
		h.writeError(w, http.StatusBadRequest, "gateway transaction id not found")
		return
	}

	amount := req.Amount
	if amount.Sign() == 0 {
		amount = txn.Amount
	}

	refundReq := paystack.RefundRequest{
		TransactionID: gatewayID,
		CustomerNote:  req.Reason,
		MerchantNote:  req.MerchantNote,
	}
	if amount.LessThan(txn.Amount) {
		refundReq.AmountPesewas = money.GhsToPesewas(amount)
	}

	result, err := h.gateway.Refund(r.Context(), refundReq)
	if err != nil {
		h.logger.Error("gateway refund failed", "error", err, "transaction_id", txn.ID)
		var apiErr *paystack.APIError
		if errors.As(err, &apiErr) {
			h.writeError(w, http.StatusBadRequest, apiErr.Message)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to initiate refund")
		return
	}

	if err := h.ledger.MarkRefunded(r.Context(), txn.ID, amount, req.Reason); err != nil {
		if errors.Is(err, ledger.ErrNotRefundable) {
			// Another admin refunded it between our read and write.
			h.writeError(w, http.StatusConflict, "transaction already refunded")
			return
		}
		h.logger.Error("failed to mark transaction refunded", "error", err, "transaction_id", txn.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if _, err := h.orders.MarkRefunded(r.Context(), txn.OrderID, amount, req.Reason, "refund:"+txn.ID); err != nil {
		// The ledger already holds the truth; the order side catches up on
		// the next admin action or support pass.
		h.logger.Error("failed to mark order refunded", "error", err, "order_id", txn.OrderID)
	}

	h.logger.Info("refund initiated",
		"transaction_id", txn.ID, "order_id", txn.OrderID, "amount", amount, "gateway_refund_id", result.ID)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"transaction_id": txn.ID,
			"order_id":       txn.OrderID,
			"amount":         amount,
			"status":         result.Status,
		},
	})
}

// gatewayTransactionID digs the numeric gateway id out of the stored
// verify/webhook payload.
func gatewayTransactionID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var payload struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.ID.String()
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
