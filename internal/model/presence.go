package model

import "time"

// ConnID uniquely identifies a live connection
type ConnID string

// Status is the activity state of a session
type Status string

const (
	StatusOnline Status = "online"
	StatusIdle   Status = "idle"
)

// ParseStatus validates a client-supplied status string
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOnline, StatusIdle:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Session is the authenticated state of a single live connection
type Session struct {
	ConnID         ConnID
	Identity       string
	Guest          bool
	Status         Status
	ConnectedAt    time.Time
	LastActivityAt time.Time
}

// RosterEntry is one identity in the presence snapshot
type RosterEntry struct {
	Identity string
	Status   Status
}
