// WebSocket hub for real-time event broadcasting.

package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/outcome-engine/internal/events"
	"github.com/atmx/outcome-engine/internal/metrics"
)

// ErrHubBacklog is returned by Publish when the broadcast buffer is full
// and the event was dropped.
var ErrHubBacklog = errors.New("ws hub: broadcast buffer full")

// subscription limits what a client receives. Empty fields match all.
type subscription struct {
	marketID string
	ticker   string
}

func (s subscription) wants(m message) bool {
	if s.marketID != "" && s.marketID != m.marketID {
		return false
	}
	return s.ticker == "" || s.ticker == m.ticker
}

type message struct {
	marketID string
	ticker   string
	data     []byte
}

type client struct {
	conn *websocket.Conn
	sub  subscription
}

// WSHub manages WebSocket connections and pushes every published event
// to the clients subscribed to its market or ticker.
type WSHub struct {
	clients    map[*websocket.Conn]subscription
	broadcast  chan message
	register   chan client
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]subscription),
		broadcast:  make(chan message, 256),
		register:   make(chan client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop until ctx is done. Must be called
// in a goroutine.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c.sub
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total, "market", c.sub.marketID, "ticker", c.sub.ticker)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn, sub := range h.clients {
				if !sub.wants(msg) {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
		}
	}
}

// Publish implements events.Publisher. It never blocks: when the buffer
// is full the event is dropped and ErrHubBacklog returned.
func (h *WSHub) Publish(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message{marketID: e.MarketID, ticker: e.Ticker, data: data}:
		return nil
	default:
		return ErrHubBacklog
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Origin policy is enforced by the CORS layer.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
// Optional ?market= and ?ticker= query parameters filter the stream.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sub := subscription{
		marketID: r.URL.Query().Get("market"),
		ticker:   r.URL.Query().Get("ticker"),
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- client{conn: conn, sub: sub}:
	case <-h.done:
		conn.Close()
		return
	}

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}()
}

var _ events.Publisher = (*WSHub)(nil)
