// Package paystack is a thin client for the Paystack REST API: transaction
// initialize, transaction verify, refunds, and webhook signature checks.
// It holds no state and does no retrying; callers decide what a failure
// means for them.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultBaseURL = "https://api.paystack.co"

type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

func NewClient(baseURL, secretKey, webhookSecret string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:       baseURL,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient:    httpClient,
	}
}

// APIError carries the gateway's own message so handlers can pass it
// through to the caller.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: %s (http %d)", e.Message, e.StatusCode)
}

// envelope is Paystack's standard response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type InitializeRequest struct {
	Email          string
	AmountPesewas  int64
	Reference      string
	CallbackURL    string
	Metadata       Metadata
	Channels       []string
}

// Metadata is echoed back on verify responses and webhook events; OrderID
// is how a gateway event finds its way back to the owning order.
type Metadata struct {
	OrderID      string `json:"orderId"`
	OrderNumber  string `json:"orderNumber,omitempty"`
	UserID       string `json:"userId,omitempty"`
	CustomerName string `json:"customerName,omitempty"`
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// DefaultChannels are the payment channels offered on the hosted page.
var DefaultChannels = []string{"card", "mobile_money", "bank_transfer"}

func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	channels := req.Channels
	if len(channels) == 0 {
		channels = DefaultChannels
	}

	body := map[string]any{
		"email":        req.Email,
		"amount":       req.AmountPesewas,
		"currency":     "GHS",
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"metadata":     req.Metadata,
		"channels":     channels,
	}

	var result InitializeResult
	if err := c.post(ctx, "/transaction/initialize", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type VerifyResult struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	AmountPesewas   int64           `json:"amount"`
	Channel         string          `json:"channel"`
	GatewayResponse string          `json:"gateway_response"`
	PaidAt          time.Time       `json:"paid_at"`
	Metadata        Metadata        `json:"metadata"`
	Raw             json.RawMessage `json:"-"`
}

// Verify statuses as returned by the gateway.
const (
	VerifyStatusSuccess   = "success"
	VerifyStatusFailed    = "failed"
	VerifyStatusAbandoned = "abandoned"
)

func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	raw, err := c.get(ctx, "/transaction/verify/"+reference)
	if err != nil {
		return nil, err
	}

	var result VerifyResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	result.Raw = raw
	return &result, nil
}

type RefundRequest struct {
	// TransactionID is the gateway's numeric id, captured from the stored
	// verify response, not our reference.
	TransactionID string
	// AmountPesewas of zero refunds the full charge.
	AmountPesewas int64
	CustomerNote  string
	MerchantNote  string
}

type RefundResult struct {
	ID       int64  `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	body := map[string]any{
		"transaction":   req.TransactionID,
		"currency":      "GHS",
		"customer_note": req.CustomerNote,
		"merchant_note": req.MerchantNote,
	}
	if req.AmountPesewas > 0 {
		body["amount"] = req.AmountPesewas
	}

	var result RefundResult
	if err := c.post(ctx, "/refund", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req)
}

// do executes the request and unwraps Paystack's envelope, turning a false
// status or non-2xx code into an APIError with the gateway's message.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read paystack response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode paystack response (http %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return env.Data, nil
}
