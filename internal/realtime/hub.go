package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	EventState = "device_state"

	sendBuffer   = 32
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 5 * time.Second
)

// Event is one frame of the live device feed.
type Event struct {
	Type     string         `json:"type"`
	DeviceID string         `json:"device_id,omitempty"`
	State    map[string]any `json:"state,omitempty"`
	At       time.Time      `json:"at"`
}

// SnapshotFunc returns the current state of every device, sent to each new subscriber.
type SnapshotFunc func() []Event

// Hub fans device state out to websocket subscribers. All client bookkeeping happens on the Run goroutine.
type Hub struct {
	upgrader websocket.Upgrader
	snapshot SnapshotFunc

	register   chan *subscriber
	unregister chan *subscriber
	events     chan Event
	count      chan chan int
	done       chan struct{}
}

type subscriber struct {
	conn   *websocket.Conn
	out    chan []byte
	device string
}

func (s *subscriber) wants(ev Event) bool {
	return s.device == "" || ev.DeviceID == "" || ev.DeviceID == s.device
}

func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Served behind api-gateway which enforces auth.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		snapshot:   snapshot,
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		events:     make(chan Event, 64),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run owns the subscriber set until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	subs := map[*subscriber]struct{}{}
	drop := func(s *subscriber) {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			close(s.out)
		}
	}
	for {
		select {
		case <-ctx.Done():
			for s := range subs {
				drop(s)
			}
			return
		case s := <-h.register:
			subs[s] = struct{}{}
		case s := <-h.unregister:
			drop(s)
		case reply := <-h.count:
			reply <- len(subs)
		case ev := <-h.events:
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			for s := range subs {
				if !s.wants(ev) {
					continue
				}
				select {
				case s.out <- b:
				default:
					slog.Debug("slow websocket subscriber dropped", "device_filter", s.device)
					drop(s)
				}
			}
		}
	}
}

// Publish queues an event; it never blocks the adapter.
func (h *Hub) Publish(ev Event) {
	ev.At = time.Now().UTC()
	select {
	case h.events <- ev:
	case <-h.done:
	default:
		slog.Warn("realtime queue full, event dropped", "device_id", ev.DeviceID)
	}
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// ServeHTTP upgrades the connection; ?device_id=govee/... narrows the feed to one device.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	s := &subscriber{conn: conn, out: make(chan []byte, sendBuffer), device: strings.TrimSpace(r.URL.Query().Get("device_id"))}
	if h.snapshot != nil {
		now := time.Now().UTC()
		for _, ev := range h.snapshot() {
			if !s.wants(ev) {
				continue
			}
			ev.At = now
			if b, err := json.Marshal(ev); err == nil {
				select {
				case s.out <- b:
				default:
				}
			}
		}
	}
	select {
	case h.register <- s:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go s.writeLoop()
	s.readLoop()
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// readLoop discards client frames and returns when the peer goes away.
func (s *subscriber) readLoop() {
	s.conn.SetReadLimit(1024)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *subscriber) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
