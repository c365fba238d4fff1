package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	httpClient := &http.Client{Transport: httpmock.DefaultTransport}
	return NewClient("https://api.paystack.test", "sk_test_secret", "whsec_test", httpClient)
}

func TestInitialize(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	t.Run("returns authorization url on success", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodPost, "https://api.paystack.test/transaction/initialize",
			func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "Bearer sk_test_secret", req.Header.Get("Authorization"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
				assert.Equal(t, "ama@example.com", body["email"])
				assert.Equal(t, float64(15000), body["amount"])
				assert.Equal(t, "GHS", body["currency"])
				assert.Equal(t, "PS-ord1-1-ABCDEF", body["reference"])

				return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
					"status":  true,
					"message": "Authorization URL created",
					"data": map[string]any{
						"authorization_url": "https://checkout.paystack.com/abc123",
						"access_code":       "abc123",
						"reference":         "PS-ord1-1-ABCDEF",
					},
				})
			})

		result, err := newTestClient().Initialize(context.Background(), InitializeRequest{
			Email:         "ama@example.com",
			AmountPesewas: 15000,
			Reference:     "PS-ord1-1-ABCDEF",
			CallbackURL:   "https://shop.example.com/payments/verify?reference=PS-ord1-1-ABCDEF",
			Metadata:      Metadata{OrderID: "ord1"},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.paystack.com/abc123", result.AuthorizationURL)
		assert.Equal(t, "PS-ord1-1-ABCDEF", result.Reference)
	})

	t.Run("propagates gateway error message", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodPost, "https://api.paystack.test/transaction/initialize",
			httpmock.NewJsonResponderOrPanic(http.StatusBadRequest, map[string]any{
				"status":  false,
				"message": "Invalid amount passed",
			}))

		_, err := newTestClient().Initialize(context.Background(), InitializeRequest{})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "Invalid amount passed", apiErr.Message)
	})
}

func TestVerify(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	t.Run("decodes a successful charge", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodGet, "https://api.paystack.test/transaction/verify/PS-ord1-1-ABCDEF",
			httpmock.NewStringResponder(http.StatusOK, `{
				"status": true,
				"message": "Verification successful",
				"data": {
					"id": 987654,
					"status": "success",
					"reference": "PS-ord1-1-ABCDEF",
					"amount": 15000,
					"channel": "mobile_money",
					"gateway_response": "Approved",
					"paid_at": "2024-01-01T10:00:00Z",
					"metadata": {"orderId": "ord1", "orderNumber": "ORD-20240101-123"}
				}
			}`))

		result, err := newTestClient().Verify(context.Background(), "PS-ord1-1-ABCDEF")
		require.NoError(t, err)
		assert.Equal(t, VerifyStatusSuccess, result.Status)
		assert.Equal(t, int64(15000), result.AmountPesewas)
		assert.Equal(t, "mobile_money", result.Channel)
		assert.Equal(t, "ord1", result.Metadata.OrderID)
		assert.Equal(t, int64(987654), result.ID)
		assert.False(t, result.PaidAt.IsZero())
		assert.NotEmpty(t, result.Raw)
	})

	t.Run("decodes an abandoned charge with null paid_at", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodGet, "https://api.paystack.test/transaction/verify/PS-ord2-1-XYZXYZ",
			httpmock.NewStringResponder(http.StatusOK, `{
				"status": true,
				"message": "Verification successful",
				"data": {
					"id": 987655,
					"status": "abandoned",
					"reference": "PS-ord2-1-XYZXYZ",
					"amount": 5000,
					"channel": "card",
					"gateway_response": "The transaction was not completed",
					"paid_at": null,
					"metadata": {"orderId": "ord2"}
				}
			}`))

		result, err := newTestClient().Verify(context.Background(), "PS-ord2-1-XYZXYZ")
		require.NoError(t, err)
		assert.Equal(t, VerifyStatusAbandoned, result.Status)
		assert.True(t, result.PaidAt.IsZero())
	})

	t.Run("unknown reference returns APIError", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodGet, "https://api.paystack.test/transaction/verify/nope",
			httpmock.NewJsonResponderOrPanic(http.StatusNotFound, map[string]any{
				"status":  false,
				"message": "Transaction reference not found",
			}))

		_, err := newTestClient().Verify(context.Background(), "nope")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Transaction reference not found", apiErr.Message)
	})
}

func TestRefund(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	t.Run("omits amount for full refunds", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodPost, "https://api.paystack.test/refund",
			func(req *http.Request) (*http.Response, error) {
				var body map[string]any
				require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
				assert.Equal(t, "987654", body["transaction"])
				_, hasAmount := body["amount"]
				assert.False(t, hasAmount)

				return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
					"status":  true,
					"message": "Refund has been queued for processing",
					"data":    map[string]any{"id": 42, "amount": 15000, "currency": "GHS", "status": "pending"},
				})
			})

		result, err := newTestClient().Refund(context.Background(), RefundRequest{
			TransactionID: "987654",
			CustomerNote:  "damaged item",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), result.ID)
	})

	t.Run("sends amount for partial refunds", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodPost, "https://api.paystack.test/refund",
			func(req *http.Request) (*http.Response, error) {
				var body map[string]any
				require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
				assert.Equal(t, float64(5000), body["amount"])

				return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
					"status": true,
					"data":   map[string]any{"id": 43, "amount": 5000, "currency": "GHS", "status": "pending"},
				})
			})

		result, err := newTestClient().Refund(context.Background(), RefundRequest{
			TransactionID: "987654",
			AmountPesewas: 5000,
			CustomerNote:  "partial",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5000), result.Amount)
	})
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	client := NewClient("", "sk", "whsec_test", nil)
	body := []byte(`{"event":"charge.success","data":{"reference":"PS-ord1-1-ABCDEF"}}`)

	t.Run("accepts a correctly signed body", func(t *testing.T) {
		assert.True(t, client.VerifySignature(body, sign("whsec_test", body)))
	})

	t.Run("rejects a signature for different bytes", func(t *testing.T) {
		tampered := []byte(`{"event":"charge.success","data":{"reference":"PS-ord9-1-FFFFFF"}}`)
		assert.False(t, client.VerifySignature(tampered, sign("whsec_test", body)))
	})

	t.Run("rejects a signature from the wrong secret", func(t *testing.T) {
		assert.False(t, client.VerifySignature(body, sign("other_secret", body)))
	})
}
