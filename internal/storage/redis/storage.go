package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/globalchat/internal/model"
	"github.com/mcoot/globalchat/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
	keys   keys
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
		keys:   newKeys(cfg.KeyPrefix),
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, account *model.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}

	// SETNX is the uniqueness guard; the index is only touched by the winner
	created, err := s.client.SetNX(ctx, s.keys.account(account.Username), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if !created {
		return model.ErrAccountExists
	}

	if err := s.client.SAdd(ctx, s.keys.accountIndex(), account.Username).Err(); err != nil {
		return fmt.Errorf("index account: %w", err)
	}
	return nil
}

func (s *Storage) GetAccount(ctx context.Context, username string) (*model.Account, error) {
	data, err := s.client.Get(ctx, s.keys.account(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	var account model.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Storage) CountAccounts(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.keys.accountIndex()).Result()
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return int(n), nil
}

// Token operations

func (s *Storage) CreateToken(ctx context.Context, token *model.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.keys.token(token.Value), data, s.cfg.TokenTTL).Result()
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	if !created {
		return model.ErrTokenExists
	}
	return nil
}

func (s *Storage) GetToken(ctx context.Context, value string) (*model.Token, error) {
	data, err := s.client.Get(ctx, s.keys.token(value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	var token model.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
