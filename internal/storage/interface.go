package storage

import (
	"context"

	"github.com/mcoot/globalchat/internal/model"
)

// Storage defines the interface for account and token persistence
type Storage interface {
	// Account operations. CreateAccount is create-if-absent and returns
	// model.ErrAccountExists when the username is taken.
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, username string) (*model.Account, error)
	CountAccounts(ctx context.Context) (int, error)

	// Token operations. CreateToken returns model.ErrTokenExists on a value collision.
	CreateToken(ctx context.Context, token *model.Token) error
	GetToken(ctx context.Context, value string) (*model.Token, error)

	Close() error
}
