package reconcile

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/perrystore/storefront/internal/domain"
	"github.com/perrystore/storefront/internal/paystack"
)

// SignatureVerifier checks a webhook body against its signature header.
type SignatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

type Handler struct {
	reconciler *Reconciler
	verifier   SignatureVerifier
	requests   Publisher
	logger     *slog.Logger
}

// NewHandler builds the HTTP surface of the workflow. requests is the
// payment.reconcile producer used by the webhook and admin triggers.
func NewHandler(reconciler *Reconciler, verifier SignatureVerifier, requests Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		verifier:   verifier,
		requests:   requests,
		logger:     logger,
	}
}

// HandleVerify is the callback target for the hosted payment page. The
// browser is waiting for a verdict, so this trigger reconciles inline
// rather than enqueueing.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		// Paystack sometimes sends the reference as trxref.
		reference = r.URL.Query().Get("trxref")
	}
	if reference == "" {
		h.writeError(w, http.StatusBadRequest, "payment reference is required")
		return
	}

	outcome, err := h.reconciler.Reconcile(r.Context(), reference)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		h.logger.Error("payment verification failed", "error", err, "reference", reference)
		h.writeError(w, http.StatusInternalServerError, "failed to verify payment")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": outcome.Success,
		"data":    outcome,
	})
}

// HandleWebhook receives gateway events. It authenticates the raw body via
// HMAC, enqueues a reconcile request for charge events and acks quickly;
// the worker re-verifies with the gateway instead of trusting the payload.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("x-paystack-signature")
	if signature == "" {
		h.writeError(w, http.StatusBadRequest, "missing signature")
		return
	}
	if !h.verifier.VerifySignature(body, signature) {
		h.logger.Error("webhook signature mismatch")
		h.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event paystack.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	switch event.Event {
	case paystack.EventChargeSuccess, paystack.EventChargeFailed:
		if event.Data.Reference == "" {
			h.writeError(w, http.StatusBadRequest, "event is missing a reference")
			return
		}
		if err := h.enqueue(r, event.Data.Reference, domain.TriggerWebhook); err != nil {
			// Non-2xx makes the gateway redeliver, which is what we want
			// when the queue is down.
			h.logger.Error("failed to enqueue reconciliation", "error", err,
				"reference", event.Data.Reference)
			h.writeError(w, http.StatusInternalServerError, "failed to queue event")
			return
		}
		h.logger.Info("webhook event queued", "event", event.Event, "reference", event.Data.Reference)
	default:
		h.logger.Info("ignoring webhook event", "event", event.Event)
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type adminReconcileRequest struct {
	Reference string `json:"reference"`
}

// HandleAdminReconcile lets back-office tooling force a re-check of a
// payment, e.g. after a support ticket. Queued like the webhook so all
// reconciliation still funnels through the worker.
func (h *Handler) HandleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	var req adminReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reference == "" {
		h.writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	if err := h.enqueue(r, req.Reference, domain.TriggerAdmin); err != nil {
		h.logger.Error("failed to enqueue reconciliation", "error", err, "reference", req.Reference)
		h.writeError(w, http.StatusInternalServerError, "failed to queue reconciliation")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"success":   true,
		"reference": req.Reference,
	})
}

func (h *Handler) enqueue(r *http.Request, reference, trigger string) error {
	return h.requests.Publish(r.Context(), reference, domain.ReconcileRequestedEvent{
		Reference:   reference,
		Trigger:     trigger,
		RequestedAt: time.Now().UTC(),
	})
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
