package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeEmail struct {
	calls    int
	lastTo   string
	lastHTML string
	err      error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, _, html, _ string) (string, error) {
	f.calls++
	f.lastTo = to
	f.lastHTML = html
	if f.err != nil {
		return "", f.err
	}
	return "email-1", nil
}

type fakeSMS struct {
	calls    int
	lastTo   string
	lastText string
	err      error
}

func (f *fakeSMS) SendSMS(_ context.Context, to, message string) error {
	f.calls++
	f.lastTo = to
	f.lastText = message
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const confirmedPayload = `{
	"order_id": "ord-1",
	"order_number": "ORD-20260301-042",
	"customer_email": "ama@example.com",
	"customer_name": "Ama Mensah",
	"customer_phone": "+233241234567",
	"total": "150.00",
	"payment_method": "Mobile Money"
}`

func TestHandleSendsEmailAndSMS(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	handler := NewHandler(email, sms, "https://perrystore.com", testLogger())

	if err := handler.Handle(context.Background(), []byte(confirmedPayload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if email.calls != 1 || email.lastTo != "ama@example.com" {
		t.Errorf("expected 1 email to ama@example.com, got %d to %q", email.calls, email.lastTo)
	}
	if !strings.Contains(email.lastHTML, "ORD-20260301-042") {
		t.Errorf("expected email body to mention order number, got %q", email.lastHTML)
	}
	if sms.calls != 1 || sms.lastTo != "+233241234567" {
		t.Errorf("expected 1 sms to +233241234567, got %d to %q", sms.calls, sms.lastTo)
	}
	if !strings.Contains(sms.lastText, "GH₵150.00") {
		t.Errorf("expected sms to mention amount, got %q", sms.lastText)
	}
	if !strings.Contains(sms.lastText, "https://perrystore.com/orders/ORD-20260301-042") {
		t.Errorf("expected sms to carry tracking link, got %q", sms.lastText)
	}
}

func TestHandleEmailFailureIsReturned(t *testing.T) {
	email := &fakeEmail{err: errors.New("provider down")}
	handler := NewHandler(email, &fakeSMS{}, "https://perrystore.com", testLogger())

	if err := handler.Handle(context.Background(), []byte(confirmedPayload)); err == nil {
		t.Fatal("expected error when email send fails")
	}
}

func TestHandleSMSFailureIsSwallowed(t *testing.T) {
	sms := &fakeSMS{err: errors.New("gateway timeout")}
	handler := NewHandler(&fakeEmail{}, sms, "https://perrystore.com", testLogger())

	if err := handler.Handle(context.Background(), []byte(confirmedPayload)); err != nil {
		t.Fatalf("sms failure should not fail the handler, got %v", err)
	}
}

func TestHandleMalformedPayloadIsDropped(t *testing.T) {
	email := &fakeEmail{}
	handler := NewHandler(email, &fakeSMS{}, "https://perrystore.com", testLogger())

	if err := handler.Handle(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
	if email.calls != 0 {
		t.Errorf("expected no email calls, got %d", email.calls)
	}
}

func TestHandleSkipsMissingChannels(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	handler := NewHandler(email, sms, "https://perrystore.com", testLogger())

	payload := `{"order_id": "ord-2", "order_number": "ORD-20260301-043", "total": "10.00"}`
	if err := handler.Handle(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.calls != 0 || sms.calls != 0 {
		t.Errorf("expected no sends without contact details, got email=%d sms=%d", email.calls, sms.calls)
	}
}
