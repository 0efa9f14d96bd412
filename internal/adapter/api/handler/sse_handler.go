package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/V4T54L/callwatch/internal/adapter/metrics"
	"github.com/V4T54L/callwatch/internal/domain"
)

const (
	tailBufferSize    = 1000
	tailClientBuffer  = 64
	heartbeatInterval = 15 * time.Second
)

type tailMessage struct {
	kind domain.Kind
	data []byte
}

// SSEBroker implements domain.Publisher and streams every recorded entry to
// connected Server-Sent Events clients.
type SSEBroker struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	clients map[chan tailMessage]struct{}
	mu      sync.RWMutex
	entries chan domain.Entry
}

// NewSSEBroker creates a new SSEBroker and starts its processing loop.
func NewSSEBroker(ctx context.Context, logger *slog.Logger, m *metrics.Metrics) *SSEBroker {
	broker := &SSEBroker{
		logger:  logger.With("component", "sse_broker"),
		metrics: m,
		clients: make(map[chan tailMessage]struct{}),
		entries: make(chan domain.Entry, tailBufferSize),
	}
	go broker.run(ctx)
	return broker
}

// ServeHTTP streams entries to one client. The optional type query parameter
// restricts the stream to one kind.
func (b *SSEBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("type")
	if kindParam == "" {
		kindParam = r.URL.Query().Get("kind")
	}
	kind, err := domain.ParseKind(kindParam)
	if err != nil {
		RespondWithError(w, b.logger, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messageChan := make(chan tailMessage, tailClientBuffer)
	b.addClient(messageChan)
	defer b.removeClient(messageChan)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-messageChan:
			if !ok {
				return // Channel was closed
			}
			if !kind.Selects(msg.kind) {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.kind, msg.data)
			flusher.Flush()
		}
	}
}

// Publish queues an entry for broadcast without blocking the caller.
func (b *SSEBroker) Publish(entry domain.Entry) {
	select {
	case b.entries <- entry:
	default:
		// Channel is full, drop the entry to avoid blocking the append path.
		b.logger.Warn("SSE entry channel is full, dropping entry", "kind", entry.Kind())
	}
}

// Clients returns the number of connected clients.
func (b *SSEBroker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *SSEBroker) addClient(client chan tailMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
	if b.metrics != nil {
		b.metrics.TailClients.Inc()
	}
	b.logger.Info("SSE client connected")
}

func (b *SSEBroker) removeClient(client chan tailMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
		if b.metrics != nil {
			b.metrics.TailClients.Dec()
		}
		b.logger.Info("SSE client disconnected")
	}
}

func (b *SSEBroker) broadcast(msg tailMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- msg:
		default:
			// Slow client; skip rather than block the others.
		}
	}
}

// run is the main processing loop for the broker.
func (b *SSEBroker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case entry := <-b.entries:
			data, err := json.Marshal(entry)
			if err != nil {
				b.logger.Error("Failed to marshal SSE message", "error", err)
				continue
			}
			b.broadcast(tailMessage{kind: entry.Kind(), data: data})
		}
	}
}

func (b *SSEBroker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		delete(b.clients, client)
		close(client)
		if b.metrics != nil {
			b.metrics.TailClients.Dec()
		}
	}
}
