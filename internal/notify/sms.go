package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const DefaultSMSBaseURL = "https://api.wigal.com.gh"

// SMSClient sends text messages through the Wigal SMS gateway.
type SMSClient struct {
	baseURL    string
	apiKey     string
	senderID   string
	httpClient *http.Client
}

func NewSMSClient(baseURL, apiKey, senderID string) *SMSClient {
	if baseURL == "" {
		baseURL = DefaultSMSBaseURL
	}
	return &SMSClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		senderID: senderID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type smsRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// SendSMS delivers one message to a phone number in E.164 format.
func (c *SMSClient) SendSMS(ctx context.Context, to, message string) error {
	body, err := json.Marshal(smsRequest{
		Sender:    c.senderID,
		Recipient: to,
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sms/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode, apiErr.Message)
	}

	return nil
}
