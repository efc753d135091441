package response

import (
	"time"

	"github.com/mcoot/globalchat/internal/model"
)

// Health is the response for the health endpoint
type Health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

// Account is the public view of an account. The credential hash is never exposed.
type Account struct {
	Username   string    `json:"username"`
	Experience int       `json:"experience"`
	Level      int       `json:"level"`
	CreatedAt  time.Time `json:"created_at"`
}

// AccountFromModel converts model.Account
func AccountFromModel(a *model.Account) Account {
	return Account{
		Username:   a.Username,
		Experience: a.Experience,
		Level:      a.Level,
		CreatedAt:  a.CreatedAt,
	}
}

// Me describes the identity behind a bearer token
type Me struct {
	Username string    `json:"username"`
	Guest    bool      `json:"guest"`
	IssuedAt time.Time `json:"issued_at"`
}

// MeFromToken converts model.Token
func MeFromToken(t *model.Token) Me {
	return Me{
		Username: t.Owner,
		Guest:    t.Guest,
		IssuedAt: t.IssuedAt,
	}
}

// Online is the roster snapshot, shaped like the onlineUsers event
type Online = model.OnlineUsersPayload
