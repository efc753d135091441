package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcoot/globalchat/internal/dependencies/random"
	"github.com/mcoot/globalchat/internal/model"
	"github.com/mcoot/globalchat/internal/services/accounts"
	"github.com/mcoot/globalchat/internal/services/broadcast"
)

// Login failure reasons sent to clients
const (
	ReasonInvalidUsername = "Invalid username."
	ReasonWrongPassword   = "Wrong password."
	ReasonInvalidToken    = "Invalid token."
	ReasonLoginFailed     = "Login failed."
)

// Accounts validates or creates credentialed identities
type Accounts interface {
	Authenticate(ctx context.Context, username, secret string) (*model.Account, accounts.Outcome, error)
}

// Tokens mints and resolves session tokens
type Tokens interface {
	Issue(ctx context.Context, owner string, guest bool) (*model.Token, error)
	Resolve(ctx context.Context, value string) (*model.Token, error)
}

// Presence tracks authenticated sessions
type Presence interface {
	Register(connID model.ConnID, identity string, guest bool) model.Session
	Deregister(connID model.ConnID) error
	SetStatus(connID model.ConnID, status model.Status) error
}

// Publisher accepts chat text from a connection
type Publisher interface {
	Publish(connID model.ConnID, text string) (*model.ChatMessage, error)
}

// Config holds transport and protocol settings for the gateway
type Config struct {
	AllowedOrigins    []string
	MaxMessageSize    int64
	SendBufferSize    int
	NotifyRateLimited bool

	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		SendBufferSize: 256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	return c
}

// Gateway upgrades HTTP requests to websockets and runs the per-connection
// state machine: Unauthenticated, then Authenticated, then Closed.
type Gateway struct {
	hub      *Hub
	accounts Accounts
	tokens   Tokens
	presence Presence
	chat     Publisher
	random   random.Random
	logger   *slog.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

// New creates a gateway
func New(
	hub *Hub,
	accounts Accounts,
	tokens Tokens,
	presence Presence,
	chat Publisher,
	random random.Random,
	logger *slog.Logger,
	cfg Config,
) *Gateway {
	cfg = cfg.withDefaults()
	logger = logger.With(slog.String("component", "gateway"))

	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	return &Gateway{
		hub:      hub,
		accounts: accounts,
		tokens:   tokens,
		presence: presence,
		chat:     chat,
		random:   random,
		logger:   logger,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		g.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := newClient(model.ConnID(uuid.NewString()), conn, g)
	if err := g.hub.add(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

// dispatch decodes one inbound frame and applies it to the client's state
func (g *Gateway) dispatch(c *Client, frame []byte) {
	var env model.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn("malformed frame ignored", slog.Any("error", err))
		return
	}

	ctx := context.Background()

	switch env.Event {
	case model.EventLogin:
		if c.state != stateUnauthenticated {
			c.logger.Debug("login ignored", slog.String("state", c.state.String()))
			return
		}
		var p model.LoginPayload
		if err := decodePayload(env.Data, &p); err != nil {
			c.logger.Warn("malformed login ignored", slog.Any("error", err))
			return
		}
		g.handleLogin(ctx, c, p)

	case model.EventSendGlobal:
		if c.state != stateAuthenticated {
			c.logger.Debug("sendGlobal ignored", slog.String("state", c.state.String()))
			return
		}
		var p model.SendGlobalPayload
		if err := decodePayload(env.Data, &p); err != nil {
			c.logger.Warn("malformed sendGlobal ignored", slog.Any("error", err))
			return
		}
		g.handleSendGlobal(c, p)

	case model.EventStatusSet:
		if c.state != stateAuthenticated {
			c.logger.Debug("status:set ignored", slog.String("state", c.state.String()))
			return
		}
		var p model.StatusSetPayload
		if err := decodePayload(env.Data, &p); err != nil {
			c.logger.Warn("malformed status:set ignored", slog.Any("error", err))
			return
		}
		g.handleStatusSet(c, p)

	default:
		c.logger.Debug("unknown event ignored", slog.String("event", string(env.Event)))
	}
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}

func (g *Gateway) handleLogin(ctx context.Context, c *Client, p model.LoginPayload) {
	identity, guest, reason := g.resolveIdentity(ctx, c, p)
	if reason != "" {
		c.reply(model.EventLoginError, model.LoginErrorPayload{Reason: reason})
		return
	}

	token, err := g.tokens.Issue(ctx, identity, guest)
	if err != nil {
		c.logger.Error("failed to issue token", slog.Any("error", err))
		c.reply(model.EventLoginError, model.LoginErrorPayload{Reason: ReasonLoginFailed})
		return
	}

	c.identity = identity
	c.state = stateAuthenticated
	c.logger = c.logger.With(slog.String("identity", identity))

	// The acknowledgement is queued before the roster so it arrives first
	c.reply(model.EventLoginSuccess, model.LoginSuccessPayload{
		Username: identity,
		Token:    token.Value,
		Guest:    guest,
	})
	// Fan-out eligibility comes before Register so the roster it triggers
	// reaches this client. A message accepted in between may precede it.
	g.hub.markAuthenticated(c)
	g.presence.Register(c.id, identity, guest)

	c.logger.Info("login succeeded", slog.Bool("guest", guest))
}

// resolveIdentity returns the identity for a login, or a failure reason
func (g *Gateway) resolveIdentity(ctx context.Context, c *Client, p model.LoginPayload) (string, bool, string) {
	switch {
	case p.Token != "":
		token, err := g.tokens.Resolve(ctx, p.Token)
		if err != nil {
			if !errors.Is(err, model.ErrTokenNotFound) {
				c.logger.Error("token lookup failed", slog.Any("error", err))
				return "", false, ReasonLoginFailed
			}
			return "", false, ReasonInvalidToken
		}
		return token.Owner, token.Guest, ""

	case p.Guest:
		return fmt.Sprintf("Guest%04d", g.random.Intn(10000)), true, ""

	default:
		account, _, err := g.accounts.Authenticate(ctx, p.Username, p.Password)
		switch {
		case err == nil:
			return account.Username, false, ""
		case errors.Is(err, model.ErrInvalidUsername):
			return "", false, ReasonInvalidUsername
		case errors.Is(err, model.ErrWrongCredential):
			return "", false, ReasonWrongPassword
		default:
			c.logger.Error("authentication failed", slog.Any("error", err))
			return "", false, ReasonLoginFailed
		}
	}
}

func (g *Gateway) handleSendGlobal(c *Client, p model.SendGlobalPayload) {
	_, err := g.chat.Publish(c.id, p.Text)
	if err == nil {
		return
	}

	var rle *broadcast.RateLimitError
	if errors.As(err, &rle) {
		c.logger.Debug("publish rate limited", slog.Duration("retry_after", rle.RetryAfter))
		if g.cfg.NotifyRateLimited {
			c.reply(model.EventRateLimited, model.RateLimitedPayload{RetryAfterMs: rle.RetryAfter.Milliseconds()})
		}
		return
	}
	c.logger.Warn("publish failed", slog.Any("error", err))
}

func (g *Gateway) handleStatusSet(c *Client, p model.StatusSetPayload) {
	status, err := model.ParseStatus(p.Status)
	if err != nil {
		c.logger.Debug("invalid status ignored", slog.String("status", p.Status))
		return
	}
	if err := g.presence.SetStatus(c.id, status); err != nil {
		c.logger.Warn("status update failed", slog.Any("error", err))
	}
}
