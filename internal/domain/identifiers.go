package domain

import (
	"crypto/rand"
	"fmt"
	"time"
)

const refAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = refAlphabet[int(b)%len(refAlphabet)]
	}
	return string(buf)
}

// NewPaymentReference builds the unique reference for one payment attempt.
// The millisecond timestamp plus random suffix keeps concurrent checkouts
// for the same order from colliding; a retried payment gets a fresh one.
func NewPaymentReference(orderID string) string {
	return fmt.Sprintf("PS-%s-%d-%s", orderID, time.Now().UnixMilli(), randomToken(6))
}

// NewOrderNumber is the human-readable order identifier shown to customers,
// e.g. ORD-20260828-4F7. Uniqueness is enforced by the database index, not
// here; callers retry on conflict.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), randomToken(3))
}
