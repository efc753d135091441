package model

import "time"

// ChatMessage is an accepted global chat message. Immutable once created.
type ChatMessage struct {
	Seq    uint64 // server acceptance order, starting at 1
	Sender string
	Text   string
	SentAt time.Time
}
