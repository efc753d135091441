package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/globalchat/internal/dependencies/clock"
	"github.com/mcoot/globalchat/internal/model"
)

// Notifier receives the roster whenever it changes. It is called with the
// registry lock held, so it must not block or call back into the registry.
type Notifier interface {
	RosterChanged(roster []model.RosterEntry)
}

// Config holds configuration for the presence registry
type Config struct {
	// IdleAfter is the inactivity window after which a session becomes idle
	IdleAfter time.Duration

	// SweepInterval is how often Run evaluates idle sessions
	SweepInterval time.Duration
}

// DefaultConfig returns default presence configuration
func DefaultConfig() Config {
	return Config{
		IdleAfter:     5 * time.Minute,
		SweepInterval: 15 * time.Second,
	}
}

type entry struct {
	session model.Session
	order   uint64
}

// Registry tracks live authenticated sessions and their activity status
type Registry struct {
	clock    clock.Clock
	logger   *slog.Logger
	notifier Notifier
	cfg      Config

	mu        sync.Mutex
	sessions  map[model.ConnID]*entry
	nextOrder uint64
}

// New creates a new presence registry. notifier may be nil.
func New(clock clock.Clock, logger *slog.Logger, notifier Notifier, cfg Config) *Registry {
	defaults := DefaultConfig()
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = defaults.IdleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	return &Registry{
		clock:    clock,
		logger:   logger.With(slog.String("component", "presence")),
		notifier: notifier,
		cfg:      cfg,
		sessions: make(map[model.ConnID]*entry),
	}
}

// SetNotifier replaces the roster notifier
func (r *Registry) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// Register creates an online session for a connection and broadcasts the roster.
// Registering an existing connection replaces its session.
func (r *Registry) Register(connID model.ConnID, identity string, guest bool) model.Session {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextOrder++
	e := &entry{
		session: model.Session{
			ConnID:         connID,
			Identity:       identity,
			Guest:          guest,
			Status:         model.StatusOnline,
			ConnectedAt:    now,
			LastActivityAt: now,
		},
		order: r.nextOrder,
	}
	r.sessions[connID] = e

	r.logger.Info("session registered",
		slog.String("conn_id", string(connID)),
		slog.String("identity", identity),
		slog.Bool("guest", guest),
	)
	r.notifyLocked()
	return e.session
}

// Deregister removes a connection's session and broadcasts the roster
func (r *Registry) Deregister(connID model.ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[connID]
	if !ok {
		return model.ErrSessionNotFound
	}
	delete(r.sessions, connID)

	r.logger.Info("session deregistered",
		slog.String("conn_id", string(connID)),
		slog.String("identity", e.session.Identity),
	)
	r.notifyLocked()
	return nil
}

// SetStatus applies a client status hint. Going online also counts as activity.
func (r *Registry) SetStatus(connID model.ConnID, status model.Status) error {
	if _, err := model.ParseStatus(string(status)); err != nil {
		return err
	}

	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[connID]
	if !ok {
		return model.ErrSessionNotFound
	}
	if status == model.StatusOnline {
		e.session.LastActivityAt = now
	}
	if e.session.Status == status {
		return nil
	}
	e.session.Status = status
	r.notifyLocked()
	return nil
}

// Touch records activity on a connection, returning it to online if idle
func (r *Registry) Touch(connID model.ConnID) error {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[connID]
	if !ok {
		return model.ErrSessionNotFound
	}
	e.session.LastActivityAt = now
	if e.session.Status != model.StatusOnline {
		e.session.Status = model.StatusOnline
		r.notifyLocked()
	}
	return nil
}

// Session returns a copy of the session for a connection
func (r *Registry) Session(connID model.ConnID) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[connID]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	return e.session, nil
}

// Snapshot returns one entry per connected identity, ordered by the identity's
// earliest live session. An identity is online if any of its sessions is.
func (r *Registry) Snapshot() []model.RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// SessionCount returns the number of live sessions
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SweepIdle marks sessions idle whose last activity is at least IdleAfter
// before now. It returns the number of sessions that changed.
func (r *Registry) SweepIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, e := range r.sessions {
		if e.session.Status == model.StatusIdle {
			continue
		}
		if now.Sub(e.session.LastActivityAt) >= r.cfg.IdleAfter {
			e.session.Status = model.StatusIdle
			changed++
		}
	}
	if changed > 0 {
		r.logger.Debug("idle sweep", slog.Int("changed", changed))
		r.notifyLocked()
	}
	return changed
}

// Run sweeps for idle sessions every SweepInterval until ctx is cancelled
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			r.SweepIdle(now)
		}
	}
}

func (r *Registry) snapshotLocked() []model.RosterEntry {
	ordered := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].order < ordered[j].order
	})

	roster := make([]model.RosterEntry, 0, len(ordered))
	index := make(map[string]int, len(ordered))
	for _, e := range ordered {
		if i, ok := index[e.session.Identity]; ok {
			if e.session.Status == model.StatusOnline {
				roster[i].Status = model.StatusOnline
			}
			continue
		}
		index[e.session.Identity] = len(roster)
		roster = append(roster, model.RosterEntry{
			Identity: e.session.Identity,
			Status:   e.session.Status,
		})
	}
	return roster
}

func (r *Registry) notifyLocked() {
	if r.notifier == nil {
		return
	}
	r.notifier.RosterChanged(r.snapshotLocked())
}
