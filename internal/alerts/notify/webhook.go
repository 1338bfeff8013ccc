package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"blinkwatch/internal/analytics/application/events"
)

type webhookPayload struct {
	At          time.Time `json:"at"`
	IdleSeconds int       `json:"idle_seconds"`
	Message     string    `json:"message"`
}

// WebhookSink posts fired alerts to an HTTP endpoint. The request runs on
// its own goroutine with a bounded timeout; failures are silently dropped,
// matching the best-effort alert contract.
type WebhookSink struct {
	url    string
	client *http.Client
	onErr  func(error)
}

// WebhookOption configures the webhook sink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(s *WebhookSink) {
		if client != nil {
			s.client = client
		}
	}
}

// WithErrorFunc installs a callback for delivery failures (logging).
func WithErrorFunc(fn func(error)) WebhookOption {
	return func(s *WebhookSink) {
		if fn != nil {
			s.onErr = fn
		}
	}
}

// NewWebhookSink constructs a webhook sink.
func NewWebhookSink(url string, opts ...WebhookOption) (*WebhookSink, error) {
	if url == "" {
		return nil, errors.New("webhook sink: empty url")
	}
	sink := &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		onErr:  func(error) {},
	}
	for _, opt := range opts {
		opt(sink)
	}
	return sink, nil
}

// Fire implements Sink.
func (s *WebhookSink) Fire(ctx context.Context, event events.AlertFired) {
	if s == nil || s.url == "" {
		return
	}
	_ = ctx // delivery outlives the caller's tick
	go func() {
		if err := s.deliver(event); err != nil {
			s.onErr(err)
		}
	}()
}

func (s *WebhookSink) deliver(event events.AlertFired) error {
	payload := webhookPayload{
		At:          event.At,
		IdleSeconds: int(event.IdleFor.Seconds()),
		Message:     fmt.Sprintf("No blink detected for %ds", int(event.IdleFor.Seconds())),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook sink: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook sink: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook sink: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook sink: status %d", resp.StatusCode)
	}
	return nil
}
