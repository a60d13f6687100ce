package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/advisor/internal/events"
)

const (
	streamBuffer      = 100
	streamWriteWait   = 10 * time.Second
	streamHeartbeat   = 30 * time.Second
	streamCloseReason = "server shutting down"
)

// streamMessage is one frame sent to a connected client
type streamMessage struct {
	Type      string      `json:"type"`
	Module    string      `json:"module,omitempty"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// EventsStreamHandler forwards bus events to websocket clients
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewEventsStreamHandler creates a new event stream handler
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus:   bus,
		log:   log.With().Str("component", "events_stream").Logger(),
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP handles GET /api/events/ws. The optional types query
// parameter is a comma-separated list of event types to forward.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	types := events.AllTypes()
	if filter := r.URL.Query().Get("types"); filter != "" {
		types = types[:0:0]
		for _, t := range strings.Split(filter, ",") {
			types = append(types, events.EventType(strings.TrimSpace(t)))
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is handled by middleware
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept websocket")
		return
	}
	h.track(conn)
	defer h.untrack(conn)

	// clients never send; CloseRead handles control frames and ends ctx on disconnect
	ctx := conn.CloseRead(context.Background())

	queue := make(chan *events.Event, streamBuffer)
	handler := func(event *events.Event) {
		select {
		case queue <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event stream queue full, dropping event")
		}
	}

	ids := make(map[events.EventType]events.SubscriptionID, len(types))
	for _, t := range types {
		ids[t] = h.bus.Subscribe(t, handler)
	}
	defer func() {
		for t, id := range ids {
			h.bus.Unsubscribe(t, id)
		}
	}()

	h.log.Info().Int("types", len(types)).Msg("Client connected to event stream")

	if err := h.write(ctx, conn, streamMessage{Type: "connected", Timestamp: time.Now().Format(time.RFC3339)}); err != nil {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-queue:
			msg := streamMessage{
				Type:      string(event.Type),
				Module:    event.Module,
				Timestamp: event.Timestamp.Format(time.RFC3339),
				Data:      event.Data,
			}
			if err := h.write(ctx, conn, msg); err != nil {
				h.log.Debug().Err(err).Msg("Event stream write failed")
				return
			}

		case <-heartbeat.C:
			if err := h.write(ctx, conn, streamMessage{Type: "heartbeat", Timestamp: time.Now().Format(time.RFC3339)}); err != nil {
				return
			}
		}
	}
}

func (h *EventsStreamHandler) write(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Str("type", msg.Type).Msg("Failed to encode stream message")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, streamWriteWait)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// Connections returns the number of open streams
func (h *EventsStreamHandler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open stream with a going-away status
func (h *EventsStreamHandler) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, streamCloseReason)
	}
}

func (h *EventsStreamHandler) track(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *EventsStreamHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
