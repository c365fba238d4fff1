package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// VerifySignature checks the x-paystack-signature header against the raw
// webhook body. The body must be the exact bytes received; re-serializing
// parsed JSON would break the HMAC.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookEvent is the inbound webhook envelope. Only the reference is read
// from the payload; the worker re-verifies with the gateway rather than
// trusting the embedded charge data.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)
