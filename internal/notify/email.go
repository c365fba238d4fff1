package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const DefaultEmailBaseURL = "https://api.resend.com"

// EmailClient sends transactional email through the Resend API.
type EmailClient struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

func NewEmailClient(baseURL, apiKey, from string) *EmailClient {
	if baseURL == "" {
		baseURL = DefaultEmailBaseURL
	}
	return &EmailClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// SendEmail delivers one message and returns the provider's message id.
func (c *EmailClient) SendEmail(ctx context.Context, to, subject, html, text string) (string, error) {
	body, err := json.Marshal(emailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return "", fmt.Errorf("email provider returned status %d: %s", resp.StatusCode, apiErr.Message)
	}

	var result emailResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode email response: %w", err)
	}

	return result.ID, nil
}
