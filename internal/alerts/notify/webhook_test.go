package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blinkwatch/internal/analytics/application/events"
)

func TestWebhookSinkPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(server.URL)
	if err != nil {
		t.Fatalf("new webhook sink: %v", err)
	}

	at := time.Date(2024, time.January, 2, 12, 34, 56, 0, time.UTC)
	sink.Fire(context.Background(), events.AlertFired{At: at, IdleFor: 42 * time.Second})

	select {
	case payload := <-payloadCh:
		if payload.IdleSeconds != 42 {
			t.Fatalf("idle_seconds = %d, want 42", payload.IdleSeconds)
		}
		if !payload.At.Equal(at) {
			t.Fatalf("at = %v, want %v", payload.At, at)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook never delivered")
	}
}

func TestWebhookSinkReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	errCh := make(chan error, 1)
	sink, err := NewWebhookSink(server.URL, WithErrorFunc(func(err error) { errCh <- err }))
	if err != nil {
		t.Fatalf("new webhook sink: %v", err)
	}

	sink.Fire(context.Background(), events.AlertFired{At: time.Now(), IdleFor: time.Minute})

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("nil error reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("failure never reported")
	}
}

func TestNewWebhookSinkEmptyURL(t *testing.T) {
	if _, err := NewWebhookSink(""); err == nil {
		t.Fatalf("empty url accepted")
	}
}
