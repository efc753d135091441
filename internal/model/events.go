package model

import "encoding/json"

// EventType identifies a real-time event on the wire
type EventType string

const (
	// Client to server
	EventLogin      EventType = "login"
	EventSendGlobal EventType = "sendGlobal"
	EventStatusSet  EventType = "status:set"

	// Server to client
	EventLoginSuccess  EventType = "loginSuccess"
	EventLoginError    EventType = "loginError"
	EventOnlineUsers   EventType = "onlineUsers"
	EventGlobalMessage EventType = "globalMessage"
	EventRateLimited   EventType = "rateLimited"
)

// Envelope is the frame format for every event in both directions
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// LoginPayload is sent by the client to authenticate.
// Exactly one of credentials, Guest or Token is expected.
type LoginPayload struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Guest    bool   `json:"guest,omitempty"`
	Token    string `json:"token,omitempty"`
}

// LoginSuccessPayload acknowledges a successful login
type LoginSuccessPayload struct {
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
	Guest    bool   `json:"guest,omitempty"`
}

// LoginErrorPayload carries a human-readable failure reason
type LoginErrorPayload struct {
	Reason string `json:"reason"`
}

// OnlineUser is one roster entry on the wire
type OnlineUser struct {
	User   string `json:"user"`
	Status Status `json:"status"`
}

// OnlineUsersPayload is the presence snapshot
type OnlineUsersPayload struct {
	Users []OnlineUser `json:"users"`
}

// SendGlobalPayload is chat text from the client
type SendGlobalPayload struct {
	Text string `json:"text"`
}

// GlobalMessagePayload is a fanned-out chat message
type GlobalMessagePayload struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// StatusSetPayload is an activity hint from the client
type StatusSetPayload struct {
	Status string `json:"status"`
}

// RateLimitedPayload tells a sender how long until the next publish is accepted
type RateLimitedPayload struct {
	RetryAfterMs int64 `json:"retryAfterMs"`
}

// NewEnvelope marshals a payload into a framed event
func NewEnvelope(event EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// OnlineUsersFromRoster converts a roster snapshot to its wire form
func OnlineUsersFromRoster(roster []RosterEntry) OnlineUsersPayload {
	users := make([]OnlineUser, len(roster))
	for i, e := range roster {
		users[i] = OnlineUser{User: e.Identity, Status: e.Status}
	}
	return OnlineUsersPayload{Users: users}
}

// GlobalMessageFromModel converts an accepted message to its wire form
func GlobalMessageFromModel(m ChatMessage) GlobalMessagePayload {
	return GlobalMessagePayload{
		User:      m.Sender,
		Text:      m.Text,
		Timestamp: m.SentAt.UnixMilli(),
	}
}
