package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPostsAdaptiveCard(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(WebhookConfig{URL: srv.URL})
	err := sender.Send(context.Background(), Message{
		Title: "Incident Detected: INC-1",
		Body:  "Severity: CRITICAL",
		Color: ColorDanger,
	})
	require.NoError(t, err)

	assert.Equal(t, "AdaptiveCard", got["type"])
	assert.Equal(t, "FF0000", got["themeColor"])
	body := got["body"].([]any)
	require.Len(t, body, 2)
	title := body[0].(map[string]any)
	assert.Equal(t, "Incident Detected: INC-1", title["text"])
}

func TestSendUnknownColorUsesDefaultTheme(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(WebhookConfig{URL: srv.URL})
	require.NoError(t, sender.Send(context.Background(), Message{Title: "t", Color: Color("magenta")}))
	assert.Equal(t, defaultThemeColor, got["themeColor"])
}

func TestSendEmptyURLIsPermanent(t *testing.T) {
	sender := NewWebhookSender(WebhookConfig{})

	err := sender.Send(context.Background(), Message{Title: "t"})
	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.False(t, permanent.IsRetryable())
}

func TestSendErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		sender := NewWebhookSender(WebhookConfig{URL: srv.URL})
		err := sender.Send(context.Background(), Message{Title: "t"})
		require.Error(t, err, "status %d", tc.status)

		var retryable *RetryableError
		if tc.retryable {
			assert.True(t, errors.As(err, &retryable), "status %d should be retryable", tc.status)
		} else {
			assert.False(t, errors.As(err, &retryable), "status %d should not be retryable", tc.status)
		}
		srv.Close()
	}
}

func TestMaskWebhookURL(t *testing.T) {
	long := "https://outlook.office.com/webhook/" + strings.Repeat("a", 40)
	masked := maskWebhookURL(long)
	assert.NotEqual(t, long, masked)
	assert.Contains(t, masked, "...")

	short := "https://example.com/hook"
	assert.Equal(t, short, maskWebhookURL(short))
}
