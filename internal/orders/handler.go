package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/perrystore/storefront/internal/domain"
)

// Store is the slice of the repository the HTTP surface needs.
type Store interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	Stats(ctx context.Context) (*domain.OrderStats, error)
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, note, location string) (bool, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleTrack serves the customer-facing tracking page: the order looked
// up by its human-readable number, timeline included.
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	orderNumber := r.PathValue("orderNumber")
	if orderNumber == "" {
		h.writeError(w, http.StatusBadRequest, "missing order number")
		return
	}

	order, err := h.store.GetByOrderNumber(r.Context(), orderNumber)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_number", orderNumber)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{
		Status:        domain.OrderStatus(query.Get("status")),
		PaymentStatus: domain.PaymentStatus(query.Get("payment_status")),
		UserID:        query.Get("user_id"),
		Limit:         100,
	}

	list, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute order stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

type updateStatusRequest struct {
	Status   domain.OrderStatus `json:"status"`
	Note     string             `json:"note"`
	Location string             `json:"location"`
}

// HandleUpdateStatus is the admin fulfilment action. Illegal jumps in the
// state machine (say placed straight to delivered) are rejected before any
// write.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		h.writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if !domain.CanTransition(order.Status, req.Status) {
		h.writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("cannot transition order from %s to %s", order.Status, req.Status))
		return
	}

	applied, err := h.store.UpdateStatus(r.Context(), id, order.Status, req.Status, req.Note, req.Location)
	if err != nil {
		h.logger.Error("failed to update order status", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !applied {
		// Lost the race against a concurrent update; the caller should
		// reload and retry.
		h.writeError(w, http.StatusConflict, "order status changed concurrently")
		return
	}

	updated, err := h.store.GetByID(r.Context(), id)
	if err != nil || updated == nil {
		h.logger.Error("failed to reload order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order status updated", "order_id", id, "status", req.Status)
	h.writeJSON(w, http.StatusOK, updated)
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
