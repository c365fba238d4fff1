package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/perrystore/storefront/internal/domain"
)

type fakeStore struct {
	orders      map[string]*domain.Order
	updateCalls int
	updateTo    domain.OrderStatus
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	return f.orders[id], nil
}

func (f *fakeStore) GetByOrderNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	for _, o := range f.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) List(_ context.Context, _ ListFilter) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) Stats(_ context.Context) (*domain.OrderStats, error) {
	return &domain.OrderStats{TotalOrders: len(f.orders)}, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, orderID string, from, to domain.OrderStatus, _, _ string) (bool, error) {
	f.updateCalls++
	f.updateTo = to
	order, ok := f.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTrackRequest(orderNumber string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/orders/number/"+orderNumber, nil)
	req.SetPathValue("orderNumber", orderNumber)
	return req
}

func TestHandleGet(t *testing.T) {
	store := &fakeStore{orders: map[string]*domain.Order{
		"ord-1": {ID: "ord-1", OrderNumber: "ORD-20260301-001", Status: domain.OrderStatusPlaced},
	}}
	handler := NewHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/orders/ord-1", nil)
	req.SetPathValue("id", "ord-1")
	rec := httptest.NewRecorder()

	handler.HandleGet(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var got domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.OrderNumber != "ORD-20260301-001" {
		t.Errorf("expected order number ORD-20260301-001, got %s", got.OrderNumber)
	}
}

func TestHandleGetNotFound(t *testing.T) {
	handler := NewHandler(&fakeStore{orders: map[string]*domain.Order{}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/orders/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	handler.HandleGet(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleTrack(t *testing.T) {
	store := &fakeStore{orders: map[string]*domain.Order{
		"ord-1": {ID: "ord-1", OrderNumber: "ORD-20260301-042", Status: domain.OrderStatusShipped},
	}}
	handler := NewHandler(store, testLogger())

	rec := httptest.NewRecorder()
	handler.HandleTrack(rec, newTrackRequest("ORD-20260301-042"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.HandleTrack(rec, newTrackRequest("ORD-00000000-000"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown order number, got %d", rec.Code)
	}
}

func TestHandleUpdateStatus(t *testing.T) {
	store := &fakeStore{orders: map[string]*domain.Order{
		"ord-1": {ID: "ord-1", Status: domain.OrderStatusConfirmed},
	}}
	handler := NewHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/ord-1/status",
		strings.NewReader(`{"status": "processing", "note": "Packing started"}`))
	req.SetPathValue("id", "ord-1")
	rec := httptest.NewRecorder()

	handler.HandleUpdateStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.updateCalls != 1 {
		t.Errorf("expected 1 update call, got %d", store.updateCalls)
	}
	if store.updateTo != domain.OrderStatusProcessing {
		t.Errorf("expected update to processing, got %s", store.updateTo)
	}
}

func TestHandleUpdateStatusIllegalTransition(t *testing.T) {
	store := &fakeStore{orders: map[string]*domain.Order{
		"ord-1": {ID: "ord-1", Status: domain.OrderStatusPlaced},
	}}
	handler := NewHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/ord-1/status",
		strings.NewReader(`{"status": "delivered"}`))
	req.SetPathValue("id", "ord-1")
	rec := httptest.NewRecorder()

	handler.HandleUpdateStatus(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	if store.updateCalls != 0 {
		t.Errorf("expected no update calls, got %d", store.updateCalls)
	}
}

func TestHandleUpdateStatusMissingBody(t *testing.T) {
	handler := NewHandler(&fakeStore{orders: map[string]*domain.Order{}}, testLogger())

	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/ord-1/status",
		strings.NewReader(`{}`))
	req.SetPathValue("id", "ord-1")
	rec := httptest.NewRecorder()

	handler.HandleUpdateStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
