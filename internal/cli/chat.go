package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/globalchat/internal/model"
)

// ErrLoginRejected is returned when the server answers a login with loginError
var ErrLoginRejected = errors.New("login rejected")

// ChatConn is a websocket session with the chat gateway
type ChatConn struct {
	conn *websocket.Conn
}

// DialChat opens the real-time connection. origin may be empty.
func DialChat(ctx context.Context, url, origin string) (*ChatConn, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	return &ChatConn{conn: conn}, nil
}

// Send writes one event frame
func (c *ChatConn) Send(event model.EventType, payload any) error {
	frame, err := model.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Next blocks for the next event frame. Frames that are not valid
// envelopes are skipped.
func (c *ChatConn) Next() (model.Envelope, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return model.Envelope{}, err
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			continue
		}
		return env, nil
	}
}

// Login sends a login frame and waits for its outcome
func (c *ChatConn) Login(payload model.LoginPayload) (model.LoginSuccessPayload, error) {
	if err := c.Send(model.EventLogin, payload); err != nil {
		return model.LoginSuccessPayload{}, err
	}

	for {
		env, err := c.Next()
		if err != nil {
			return model.LoginSuccessPayload{}, err
		}

		switch env.Event {
		case model.EventLoginSuccess:
			var ok model.LoginSuccessPayload
			if err := json.Unmarshal(env.Data, &ok); err != nil {
				return model.LoginSuccessPayload{}, fmt.Errorf("decoding loginSuccess: %w", err)
			}
			return ok, nil
		case model.EventLoginError:
			var fail model.LoginErrorPayload
			_ = json.Unmarshal(env.Data, &fail)
			return model.LoginSuccessPayload{}, fmt.Errorf("%w: %s", ErrLoginRejected, fail.Reason)
		}
	}
}

// Close sends a normal closure and closes the connection
func (c *ChatConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

// closeOnDone unblocks pending reads when ctx ends
func (c *ChatConn) closeOnDone(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
