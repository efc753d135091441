package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mcoot/globalchat/internal/api"
	"github.com/mcoot/globalchat/internal/config"
	"github.com/mcoot/globalchat/internal/dependencies/clock"
	"github.com/mcoot/globalchat/internal/dependencies/random"
	"github.com/mcoot/globalchat/internal/gateway"
	"github.com/mcoot/globalchat/internal/services/accounts"
	"github.com/mcoot/globalchat/internal/services/broadcast"
	"github.com/mcoot/globalchat/internal/services/presence"
	"github.com/mcoot/globalchat/internal/services/tokens"
	"github.com/mcoot/globalchat/internal/storage"
	"github.com/mcoot/globalchat/internal/storage/memory"
	redisstorage "github.com/mcoot/globalchat/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory = config.StorageMemory
	StorageTypeRedis  = config.StorageRedis
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// Services
	Accounts *accounts.Service
	Tokens   *tokens.Service
	Presence *presence.Registry
	Channel  *broadcast.Channel

	// Transport
	Hub     *gateway.Hub
	Gateway *gateway.Gateway
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config

	// Per-component settings; zero values fall back to each package's defaults
	Accounts  accounts.Config
	Presence  presence.Config
	Broadcast broadcast.Config
	Gateway   gateway.Config
}

// ConfigFrom maps the server configuration onto factory settings
func ConfigFrom(cfg *config.Config, logger *slog.Logger) Config {
	fc := Config{
		Logger:      logger,
		StorageType: cfg.Storage.Type,
		Accounts: accounts.Config{
			BcryptCost: cfg.Auth.BcryptCost,
		},
		Presence: presence.Config{
			IdleAfter:     cfg.Presence.IdleAfter,
			SweepInterval: cfg.Presence.SweepInterval,
		},
		Broadcast: broadcast.Config{
			Cooldown:     cfg.Chat.Cooldown,
			HistoryLimit: cfg.Chat.HistoryLimit,
		},
		Gateway: gateway.Config{
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			MaxMessageSize:    cfg.Server.MaxMessageSize,
			NotifyRateLimited: cfg.Chat.NotifyRateLimited,
		},
	}

	if cfg.Storage.Type == config.StorageRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.Storage.RedisURL
		redisCfg.KeyPrefix = cfg.Storage.KeyPrefix
		redisCfg.TokenTTL = cfg.Storage.TokenTTL
		fc.RedisConfig = &redisCfg
	}
	return fc
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	return newWithDependencies(store, clock.New(), random.New(), logger, cfg), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, logger *slog.Logger, cfg Config) *App {
	hub := gateway.NewHub(logger)
	accountService := accounts.New(store, clk, logger, cfg.Accounts)
	tokenService := tokens.New(store, clk, rnd, logger)
	registry := presence.New(clk, logger, hub, cfg.Presence)
	channel := broadcast.New(registry, clk, logger, hub, cfg.Broadcast)
	gw := gateway.New(hub, accountService, tokenService, registry, channel, rnd, logger, cfg.Gateway)

	return &App{
		Storage:  store,
		Clock:    clk,
		Random:   rnd,
		Logger:   logger,
		Accounts: accountService,
		Tokens:   tokenService,
		Presence: registry,
		Channel:  channel,
		Hub:      hub,
		Gateway:  gw,
	}
}

// Router builds the HTTP handler serving the websocket and the REST API
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:      a.Logger,
		Gateway:     a.Gateway,
		Roster:      a.Presence,
		Connections: a.Hub,
		Accounts:    a.Accounts,
		Tokens:      a.Tokens,
	})
}

// RunMaintenance runs the idle sweeper and cooldown pruner until ctx is
// cancelled
func (a *App) RunMaintenance(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Presence.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.Channel.Run(ctx, 0)
	}()
	wg.Wait()
}

// Shutdown disconnects every client and releases storage
func (a *App) Shutdown(ctx context.Context) error {
	hubErr := a.Hub.Shutdown(ctx)
	storeErr := a.Storage.Close()
	return errors.Join(hubErr, storeErr)
}
