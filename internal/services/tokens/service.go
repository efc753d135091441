package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/globalchat/internal/dependencies/clock"
	"github.com/mcoot/globalchat/internal/dependencies/random"
	"github.com/mcoot/globalchat/internal/model"
	"github.com/mcoot/globalchat/internal/storage"
)

const (
	// tokenAlphabet is URL-safe; 43 characters gives 258 bits of entropy
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	tokenLength   = 43

	maxIssueAttempts = 5
)

// ErrIssueFailed is returned when no unique token could be generated
var ErrIssueFailed = errors.New("could not generate a unique token")

// Service mints opaque bearer tokens and resolves them to their owners
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
}

// New creates a new token service
func New(storage storage.Storage, clock clock.Clock, random random.Random, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		random:  random,
		logger:  logger.With(slog.String("component", "tokens")),
	}
}

// Issue mints a token for owner. Collisions are retried with a fresh value.
func (s *Service) Issue(ctx context.Context, owner string, guest bool) (*model.Token, error) {
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		value := s.random.String(tokenLength, tokenAlphabet)
		if value == "" {
			continue
		}

		token := &model.Token{
			Value:    value,
			Owner:    owner,
			Guest:    guest,
			IssuedAt: s.clock.Now(),
		}

		err := s.storage.CreateToken(ctx, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, model.ErrTokenExists) {
			return nil, err
		}
		s.logger.Warn("token collision, regenerating", slog.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("issue token for %s: %w", owner, ErrIssueFailed)
}

// Resolve returns the token record for value, or model.ErrTokenNotFound
func (s *Service) Resolve(ctx context.Context, value string) (*model.Token, error) {
	if value == "" {
		return nil, model.ErrTokenNotFound
	}
	return s.storage.GetToken(ctx, value)
}
