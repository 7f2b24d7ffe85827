// Package live streams status events to WebSocket clients watching an order.
//
// A Hub owns one room per order. Run must be started before clients connect;
// it is the only goroutine that touches the room map.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"order-status-tracker/internal/metrics"
	"order-status-tracker/internal/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

var ErrHubClosed = errors.New("live hub closed")

type Hub struct {
	rooms      map[uint]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan model.StatusEvent
	done       chan struct{}

	mu     sync.RWMutex
	counts map[uint]int

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewHub(m *metrics.Metrics, log *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uint]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan model.StatusEvent, 64),
		done:       make(chan struct{}),
		counts:     make(map[uint]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		metrics: m,
		log:     log,
	}
}

// SetCheckOrigin replaces the default allow-all origin check.
func (h *Hub) SetCheckOrigin(fn func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for c := range room {
					close(c.send)
				}
			}
			h.rooms = map[uint]map[*Client]struct{}{}
			h.syncCounts()
			return

		case c := <-h.register:
			room, ok := h.rooms[c.orderID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[c.orderID] = room
			}
			room[c] = struct{}{}
			h.syncCounts()
			h.log.Debug("live client connected", "order_id", c.orderID)

		case c := <-h.unregister:
			h.remove(c)

		case event := <-h.broadcast:
			msg, err := json.Marshal(event)
			if err != nil {
				h.log.Error("marshal live event", "error", err)
				continue
			}
			for c := range h.rooms[event.OrderID] {
				select {
				case c.send <- msg:
				default:
					// slow consumer
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	room, ok := h.rooms[c.orderID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.orderID)
	}
	h.syncCounts()
	h.log.Debug("live client disconnected", "order_id", c.orderID)
}

func (h *Hub) syncCounts() {
	total := 0
	counts := make(map[uint]int, len(h.rooms))
	for id, room := range h.rooms {
		counts[id] = len(room)
		total += len(room)
	}

	h.mu.Lock()
	h.counts = counts
	h.mu.Unlock()

	h.metrics.SetLiveClients(total)
}

// ClientCount reports the clients currently watching orderID.
func (h *Hub) ClientCount(orderID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[orderID]
}

// PublishStatus queues event for every client watching the order.
func (h *Hub) PublishStatus(ctx context.Context, event model.StatusEvent) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.broadcast <- event:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether Run has returned.
func (h *Hub) Closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Serve upgrades the request and attaches the connection to the order's room.
// The client has already been answered when an error is returned.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, orderID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := &Client{hub: h, conn: conn, orderID: orderID, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return ErrHubClosed
	}

	go c.writePump()
	go c.readPump()
	return nil
}
