package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/perrystore/storefront/internal/domain"
)

// WorkerHandler consumes payment.reconcile messages and runs the workflow.
// Messages are keyed by reference, so concurrent triggers for one payment
// arrive on one partition and run serially.
type WorkerHandler struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewWorkerHandler(reconciler *Reconciler, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Handle processes one queued request. A nil return commits the message;
// an error leaves it uncommitted for redelivery. Unknown references are
// terminal (the gateway retries webhooks for payments we never initiated,
// e.g. from another environment sharing the integration), so they are
// logged and committed.
func (h *WorkerHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.ReconcileRequestedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		// A malformed message never becomes parseable; drop it rather
		// than wedging the partition.
		h.logger.Error("dropping malformed reconcile request", "error", err)
		return nil
	}

	h.logger.Info("reconciling payment", "reference", event.Reference, "trigger", event.Trigger)

	outcome, err := h.reconciler.Reconcile(ctx, event.Reference)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			h.logger.Error("transaction not found, dropping request",
				"reference", event.Reference, "trigger", event.Trigger)
			return nil
		}
		h.logger.Error("reconciliation failed, will retry",
			"error", err, "reference", event.Reference)
		return fmt.Errorf("reconcile %s: %w", event.Reference, err)
	}

	h.logger.Info("reconciliation complete",
		"reference", event.Reference, "status", outcome.Status, "order_id", outcome.OrderID)
	return nil
}
