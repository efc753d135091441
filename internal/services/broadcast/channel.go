package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/globalchat/internal/dependencies/clock"
	"github.com/mcoot/globalchat/internal/model"
)

// Fanout delivers an accepted message to every connected client. It is
// called with the channel lock held, so it must not block.
type Fanout interface {
	Broadcast(msg model.ChatMessage)
}

// Sessions resolves connections to their authenticated identity
type Sessions interface {
	Session(connID model.ConnID) (model.Session, error)
	Touch(connID model.ConnID) error
}

// RateLimitError reports a publish rejected by the sender cooldown.
// It matches model.ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == model.ErrRateLimited
}

// Config holds configuration for the broadcast channel
type Config struct {
	// Cooldown is the minimum interval between accepted publishes per identity
	Cooldown time.Duration

	// HistoryLimit caps retained messages. Zero keeps everything.
	HistoryLimit int
}

// DefaultConfig returns default broadcast configuration
func DefaultConfig() Config {
	return Config{
		Cooldown:     3000 * time.Millisecond,
		HistoryLimit: 0,
	}
}

// Channel is the global chat channel
type Channel struct {
	sessions Sessions
	clock    clock.Clock
	logger   *slog.Logger
	fanout   Fanout
	cfg      Config

	mu           sync.Mutex
	history      []model.ChatMessage
	seq          uint64
	lastAccepted map[string]time.Time
}

// New creates a new broadcast channel. fanout may be nil.
func New(sessions Sessions, clock clock.Clock, logger *slog.Logger, fanout Fanout, cfg Config) *Channel {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}
	return &Channel{
		sessions:     sessions,
		clock:        clock,
		logger:       logger.With(slog.String("component", "broadcast")),
		fanout:       fanout,
		cfg:          cfg,
		lastAccepted: make(map[string]time.Time),
	}
}

// SetFanout replaces the fan-out target
func (c *Channel) SetFanout(f Fanout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fanout = f
}

// Publish accepts text from an authenticated connection. Blank text is a
// no-op returning (nil, nil). A publish inside the sender's cooldown
// returns a *RateLimitError.
func (c *Channel) Publish(connID model.ConnID, text string) (*model.ChatMessage, error) {
	session, err := c.sessions.Session(connID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, model.ErrNotAuthenticated
		}
		return nil, err
	}

	// Any publish attempt counts as activity
	if err := c.sessions.Touch(connID); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, model.ErrNotAuthenticated
		}
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if last, ok := c.lastAccepted[session.Identity]; ok {
		if elapsed := now.Sub(last); elapsed < c.cfg.Cooldown {
			return nil, &RateLimitError{RetryAfter: c.cfg.Cooldown - elapsed}
		}
	}

	c.seq++
	msg := model.ChatMessage{
		Seq:    c.seq,
		Sender: session.Identity,
		Text:   text,
		SentAt: now,
	}
	c.lastAccepted[session.Identity] = now

	c.history = append(c.history, msg)
	if c.cfg.HistoryLimit > 0 && len(c.history) > c.cfg.HistoryLimit {
		trimmed := make([]model.ChatMessage, c.cfg.HistoryLimit)
		copy(trimmed, c.history[len(c.history)-c.cfg.HistoryLimit:])
		c.history = trimmed
	}

	if c.fanout != nil {
		c.fanout.Broadcast(msg)
	}
	return &msg, nil
}

// History returns a copy of retained messages in acceptance order
func (c *Channel) History() []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ChatMessage, len(c.history))
	copy(out, c.history)
	return out
}

// Prune drops cooldown state for identities whose cooldown has elapsed
func (c *Channel) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for identity, last := range c.lastAccepted {
		if now.Sub(last) >= c.cfg.Cooldown {
			delete(c.lastAccepted, identity)
			pruned++
		}
	}
	return pruned
}

// Run prunes cooldown state every interval until ctx is cancelled
func (c *Channel) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.cfg.Cooldown
	}
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			if n := c.Prune(now); n > 0 {
				c.logger.Debug("pruned cooldowns", slog.Int("count", n))
			}
		}
	}
}
