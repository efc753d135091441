package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/globalchat/internal/dependencies/clock"
	"github.com/mcoot/globalchat/internal/model"
	"github.com/mcoot/globalchat/internal/storage"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,20}$`)

// Outcome reports whether Authenticate created or matched an account
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeMatched Outcome = "matched"
)

// Config holds configuration for the accounts service
type Config struct {
	// BcryptCost is the work factor for new credential hashes
	BcryptCost int
}

// DefaultConfig returns default accounts configuration
func DefaultConfig() Config {
	return Config{
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Service is the credential store. Accounts are created on first login.
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
	cost    int
}

// New creates a new accounts service
func New(storage storage.Storage, clock clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = DefaultConfig().BcryptCost
	}
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger.With(slog.String("component", "accounts")),
		cost:    cfg.BcryptCost,
	}
}

// ValidUsername reports whether username is 4-20 alphanumeric characters
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Authenticate checks a username and secret, creating the account if it does not exist
func (s *Service) Authenticate(ctx context.Context, username, secret string) (*model.Account, Outcome, error) {
	if !ValidUsername(username) {
		return nil, "", model.ErrInvalidUsername
	}

	account, err := s.storage.GetAccount(ctx, username)
	switch {
	case err == nil:
		return s.match(account, secret)
	case !errors.Is(err, model.ErrAccountNotFound):
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash credential: %w", err)
	}

	account = &model.Account{
		Username:   username,
		SecretHash: string(hash),
		Experience: model.DefaultExperience,
		Level:      model.DefaultLevel,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.storage.CreateAccount(ctx, account); err != nil {
		if !errors.Is(err, model.ErrAccountExists) {
			return nil, "", err
		}
		// Lost a creation race; the winner's secret is authoritative
		existing, err := s.storage.GetAccount(ctx, username)
		if err != nil {
			return nil, "", err
		}
		return s.match(existing, secret)
	}

	s.logger.Info("account created", slog.String("username", username))
	return account, OutcomeCreated, nil
}

// Get returns an account by username
func (s *Service) Get(ctx context.Context, username string) (*model.Account, error) {
	return s.storage.GetAccount(ctx, username)
}

// Count returns the number of registered accounts
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.storage.CountAccounts(ctx)
}

func (s *Service) match(account *model.Account, secret string) (*model.Account, Outcome, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)); err != nil {
		return nil, "", model.ErrWrongCredential
	}
	return account, OutcomeMatched, nil
}
