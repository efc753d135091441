package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/globalchat/internal/model"
)

// connState is the per-connection state machine
type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// Client is one websocket connection
type Client struct {
	id     model.ConnID
	conn   *websocket.Conn
	hub    *Hub
	gw     *Gateway
	logger *slog.Logger
	send   chan []byte

	// Owned by the read pump
	state    connState
	identity string

	// Guarded by hub.mu
	authenticated bool
	sendClosed    bool
}

func newClient(id model.ConnID, conn *websocket.Conn, gw *Gateway) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		hub:    gw.hub,
		gw:     gw,
		logger: gw.logger.With(slog.String("conn_id", string(id))),
		send:   make(chan []byte, gw.cfg.SendBufferSize),
		state:  stateUnauthenticated,
	}
}

// reply enqueues an event for this client only
func (c *Client) reply(event model.EventType, payload any) {
	frame, err := model.NewEnvelope(event, payload)
	if err != nil {
		c.logger.Error("failed to encode reply", slog.String("event", string(event)), slog.Any("error", err))
		return
	}
	if !c.hub.send(c, frame) {
		c.logger.Warn("reply dropped", slog.String("event", string(event)))
	}
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.gw.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		// Any inbound frame proves the peer is alive
		_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongWait))
		c.gw.dispatch(c, frame)
	}
}

// close moves the client to Closed, releasing its session exactly once
func (c *Client) close() {
	if c.state == stateAuthenticated {
		if err := c.gw.presence.Deregister(c.id); err != nil && !errors.Is(err, model.ErrSessionNotFound) {
			c.logger.Error("failed to deregister session", slog.Any("error", err))
		}
	}
	c.state = stateClosed
	c.hub.remove(c)
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("error closing connection", slog.Any("error", err))
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeded read limit", slog.Int64("limit", c.gw.cfg.MaxMessageSize))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debug("client closed connection")
	case isExpectedCloseError(err):
		c.logger.Debug("connection closed", slog.Any("error", err))
	default:
		c.logger.Warn("websocket read error", slog.Any("error", err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.gw.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warn("websocket write error", slog.Any("error", err))
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure)
}
