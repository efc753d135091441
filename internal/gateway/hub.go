package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mcoot/globalchat/internal/model"
)

// ErrHubClosed is returned when a connection arrives after shutdown began
var ErrHubClosed = errors.New("hub is closed")

// Hub tracks live connections and fans events out to authenticated ones.
// Delivery is a non-blocking enqueue; a client whose buffer is full is
// disconnected rather than allowed to stall everyone else.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	wg sync.WaitGroup
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With(slog.String("component", "hub")),
		clients: make(map[*Client]struct{}),
	}
}

// add registers a connected client and counts it towards Shutdown
func (h *Hub) add(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)

	h.logger.Info("client connected",
		slog.String("conn_id", string(c.id)),
		slog.Int("total_clients", len(h.clients)))
	return nil
}

// remove unregisters a client and closes its send queue
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.closeSendLocked(c)
	h.wg.Done()

	h.logger.Info("client disconnected",
		slog.String("conn_id", string(c.id)),
		slog.Int("total_clients", len(h.clients)))
}

// markAuthenticated makes a client eligible for roster and chat fan-out
func (h *Hub) markAuthenticated(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.authenticated = true
}

// send enqueues a frame for a single client
func (h *Hub) send(c *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Broadcast delivers an accepted chat message to every authenticated client
func (h *Hub) Broadcast(msg model.ChatMessage) {
	frame, err := model.NewEnvelope(model.EventGlobalMessage, model.GlobalMessageFromModel(msg))
	if err != nil {
		h.logger.Error("failed to encode chat message", slog.Any("error", err))
		return
	}
	h.fanout(frame)
}

// RosterChanged delivers the presence snapshot to every authenticated client
func (h *Hub) RosterChanged(roster []model.RosterEntry) {
	frame, err := model.NewEnvelope(model.EventOnlineUsers, model.OnlineUsersFromRoster(roster))
	if err != nil {
		h.logger.Error("failed to encode roster", slog.Any("error", err))
		return
	}
	h.fanout(frame)
}

func (h *Hub) fanout(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent, dropped := 0, 0
	for c := range h.clients {
		if !c.authenticated || c.sendClosed {
			continue
		}
		select {
		case c.send <- frame:
			sent++
		default:
			// Closing the queue makes the write pump hang up; the read
			// pump then deregisters the session.
			h.closeSendLocked(c)
			dropped++
			h.logger.Warn("client send buffer full, disconnecting",
				slog.String("conn_id", string(c.id)))
		}
	}
	if dropped > 0 {
		h.logger.Warn("broadcast partial failure",
			slog.Int("sent", sent),
			slog.Int("dropped", dropped))
	}
}

func (h *Hub) closeSendLocked(c *Client) {
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown stops accepting connections, asks every client to close and
// waits for their pumps to finish or ctx to expire
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	count := len(h.clients)
	for c := range h.clients {
		h.closeSendLocked(c)
	}
	h.mu.Unlock()

	h.logger.Info("hub shutting down", slog.Int("clients", count))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub stopped")
		return nil
	case <-ctx.Done():
		h.logger.Warn("hub shutdown timed out")
		return ctx.Err()
	}
}
