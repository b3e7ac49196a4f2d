// Package events pushes swap attempt and monitor results to websocket subscribers.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/observability"
)

// Event types.
const (
	TypeAttempt = "attempt"
	TypeRun     = "run"
	TypeMonitor = "monitor"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

// Event is one message sent to every subscriber.
type Event struct {
	Type      string                  `json:"type"`
	RunID     string                  `json:"run_id,omitempty"`
	Attempt   int                     `json:"attempt,omitempty"`
	Result    *domain.AttemptResponse `json:"result,omitempty"`
	Monitor   *domain.MonitorResponse `json:"monitor,omitempty"`
	Timestamp int64                   `json:"timestamp"`
}

// Publisher accepts events. A nil Publisher is never passed around; use Discard.
type Publisher interface {
	Publish(ev Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

// Broadcaster fans events out to connected websocket clients. Each client
// has its own buffered queue drained by a writer goroutine, so Publish never
// waits on the network.
type Broadcaster struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
	done   chan struct{}
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger.With("component", "events"),
	}
}

// Publish queues ev for every subscriber. A subscriber whose queue is full
// misses the event.
func (b *Broadcaster) Publish(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("marshal event", "type", ev.Type, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.logger.Warn("subscriber queue full, event dropped", "remote", c.remote, "type", ev.Type)
		}
	}
}

// Subscribers returns the number of connected clients.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Handler upgrades the request and registers the connection until the client
// goes away. Incoming messages are read and discarded.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		c := &client{
			conn:   conn,
			remote: conn.RemoteAddr().String(),
			send:   make(chan []byte, sendBuffer),
			done:   make(chan struct{}),
		}
		b.add(c)

		go b.writeLoop(c)
		go func() {
			defer b.remove(c)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func (b *Broadcaster) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				b.logger.Warn("websocket write failed", "remote", c.remote, "error", err)
				b.remove(c)
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		b.drop(c)
	}
	observability.SetEventSubscribers(0)
}

func (b *Broadcaster) add(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
	observability.SetEventSubscribers(len(b.clients))
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		b.drop(c)
	}
	observability.SetEventSubscribers(len(b.clients))
}

// drop unregisters c and stops its writer. Callers hold b.mu.
func (b *Broadcaster) drop(c *client) {
	delete(b.clients, c)
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
}
