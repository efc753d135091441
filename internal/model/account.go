package model

import "time"

// Account defaults applied on first login
const (
	DefaultExperience = 0
	DefaultLevel      = 1
)

// Account is a registered chat identity
type Account struct {
	Username   string // unique, immutable
	SecretHash string // bcrypt hash, never the raw secret
	Experience int    // >= 0
	Level      int    // >= 1
	CreatedAt  time.Time
}

// Token is an opaque bearer credential for an identity
type Token struct {
	Value    string
	Owner    string
	Guest    bool // owner is a synthesized guest identity
	IssuedAt time.Time
}
