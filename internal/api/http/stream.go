package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	appevents "blinkwatch/internal/analytics/application/events"
)

// SSEBroker fans out blink, window and alert events to connected clients.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan []byte]struct{})}
}

// HandleBlinkDetected is a bus subscriber for confirmed blinks.
func (b *SSEBroker) HandleBlinkDetected(_ context.Context, event appevents.BlinkDetected) error {
	b.broadcast("blink", map[string]any{
		"at":      event.At.Format(time.RFC3339),
		"ordinal": event.Ordinal,
	})
	return nil
}

// HandleWindowClosed is a bus subscriber for closed aggregate windows.
func (b *SSEBroker) HandleWindowClosed(_ context.Context, event appevents.WindowClosed) error {
	b.broadcast("window", map[string]any{
		"granularity":    string(event.Record.Kind),
		"interval_start": event.Record.Start.Format(time.RFC3339),
		"interval_end":   event.Record.End.Format(time.RFC3339),
		"blink_count":    event.Record.BlinkCount,
	})
	return nil
}

// HandleAlertFired is a bus subscriber for no-blink alerts.
func (b *SSEBroker) HandleAlertFired(_ context.Context, event appevents.AlertFired) error {
	b.broadcast("alert", map[string]any{
		"at":           event.At.Format(time.RFC3339),
		"idle_seconds": int(event.IdleFor.Seconds()),
	})
	return nil
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, ch)
	close(ch)
}

func (b *SSEBroker) broadcast(name string, body map[string]any) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	frame := append([]byte("event: "+name+"\ndata: "), payload...)
	frame = append(frame, '\n', '\n')

	// Sends stay under the lock so Unsubscribe cannot close a channel
	// mid-broadcast. They never block: a full client just drops the frame.
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// StreamHandler serves the SSE event stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/events/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
