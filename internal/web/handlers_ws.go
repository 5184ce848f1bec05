package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"home-hub/internal/home"
	"home-hub/internal/metrics"

	"nhooyr.io/websocket"
)

// EventSnapshot is the first message a WebSocket client receives: the full
// room-set plus the live display message, if any.
const EventSnapshot = "snapshot"

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

// WSHub fans hub events out to WebSocket clients. A client that cannot keep
// up with its send buffer is dropped rather than allowed to stall emitters.
type WSHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	stopped bool
	done    chan struct{}
	logger  *slog.Logger
}

type wsClient struct {
	conn  *websocket.Conn
	send  chan []byte
	types []string // event types to receive; empty means all
}

func (c *wsClient) wants(eventType string) bool {
	return len(c.types) == 0 || slices.Contains(c.types, eventType)
}

// NewWSHub creates an empty hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients: make(map[*wsClient]struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// add registers c. It reports false once the hub has stopped.
func (h *WSHub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	h.changedLocked()
	return true
}

// remove unregisters c and closes its send channel. Unknown clients are ignored.
func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *WSHub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.changedLocked()
}

func (h *WSHub) changedLocked() {
	metrics.SetWSClients(len(h.clients))
	h.logger.Debug("ws clients changed", "total", len(h.clients))
}

// Len returns the number of connected clients.
func (h *WSHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues event for every client subscribed to its type. It never
// blocks.
func (h *WSHub) Broadcast(event home.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var payload []byte
	for c := range h.clients {
		if !c.wants(event.Type) {
			continue
		}
		if payload == nil {
			var err error
			if payload, err = json.Marshal(event); err != nil {
				h.logger.Error("ws marshal", "type", event.Type, "err", err)
				return
			}
		}
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("ws client evicted, send buffer full", "type", event.Type)
			metrics.WSEviction()
			h.dropLocked(c)
		}
	}
}

// Stop closes every client and refuses new ones. Safe to call more than once.
func (h *WSHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.done)
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// parseEventTypes reads the comma separated ?types= filter. Unknown names
// are ignored; a filter with no known names means every type.
func parseEventTypes(raw string) []string {
	var types []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if slices.Contains(home.EventTypes, t) && !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	return types
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	if err := s.writeSnapshot(r.Context(), conn); err != nil {
		s.logger.Debug("ws snapshot", "err", err)
		conn.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}

	client := &wsClient{
		conn:  conn,
		send:  make(chan []byte, wsSendBuffer),
		types: parseEventTypes(r.URL.Query().Get("types")),
	}
	if !s.wsHub.add(client) {
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go s.wsWriteLoop(client)
	s.wsReadLoop(client)
}

// writeSnapshot sends the current state directly on conn. It runs before the
// client is registered, so it never races the write loop.
func (s *Server) writeSnapshot(ctx context.Context, conn *websocket.Conn) error {
	rooms, err := s.hub.Rooms()
	if err != nil {
		return err
	}
	data := map[string]interface{}{"rooms": rooms}
	if msg, ok := s.hub.DisplayMessage(); ok {
		data["display"] = msg
	}
	payload, err := json.Marshal(home.Event{Type: EventSnapshot, At: time.Now(), Data: data})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

// wsWriteLoop drains client.send until the hub closes it.
func (s *Server) wsWriteLoop(client *wsClient) {
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
		err := client.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			s.wsHub.remove(client)
			break
		}
	}
	client.conn.Close(websocket.StatusNormalClosure, "")
}

// wsReadLoop discards inbound frames until the peer goes away or the hub stops.
func (s *Server) wsReadLoop(client *wsClient) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.wsHub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if _, _, err := client.conn.Read(ctx); err != nil {
			break
		}
	}
	s.wsHub.remove(client)
}
