package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// themeColors maps message colors to Teams card theme colors.
var themeColors = map[Color]string{
	ColorDanger:  "FF0000",
	ColorWarning: "FF6600",
	ColorInfo:    "0078D4",
	ColorGood:    "00CC00",
}

const defaultThemeColor = "0078D4"

// WebhookConfig configures the Teams webhook sender.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// WebhookSender posts adaptive cards to a Teams incoming webhook.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
}

func NewWebhookSender(cfg WebhookConfig) *WebhookSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &WebhookSender{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Send posts one message as an adaptive card.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	if s.config.URL == "" {
		return &PermanentError{Message: "webhook URL is empty"}
	}

	body, err := json.Marshal(buildCard(msg))
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	return s.handleResponse(resp, msg.Title)
}

func (s *WebhookSender) handleResponse(resp *http.Response, title string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		log.Printf("[notify] sent %q to %s", title, maskWebhookURL(s.config.URL))
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{Code: resp.StatusCode, Message: fmt.Sprintf("bad request: %s", string(body))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PermanentError{Code: resp.StatusCode, Message: "invalid or expired webhook"}
	case resp.StatusCode == http.StatusNotFound:
		return &PermanentError{Code: resp.StatusCode, Message: "webhook not found"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{Code: resp.StatusCode, Message: "rate limited"}
	case resp.StatusCode >= 500:
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("server error: %s", string(body))}
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

func buildCard(msg Message) map[string]any {
	theme, ok := themeColors[msg.Color]
	if !ok {
		theme = defaultThemeColor
	}
	return map[string]any{
		"$schema":    "http://adaptivecards.io/schemas/adaptive-card.json",
		"type":       "AdaptiveCard",
		"version":    "1.4",
		"themeColor": theme,
		"body": []map[string]any{
			{
				"type":   "TextBlock",
				"size":   "Large",
				"weight": "Bolder",
				"text":   msg.Title,
			},
			{
				"type": "TextBlock",
				"text": msg.Body,
				"wrap": true,
			},
		},
	}
}

// maskWebhookURL hides part of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError indicates a failure that will not succeed on retry.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

func (e *RetryableError) IsRetryable() bool { return true }
