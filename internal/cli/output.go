package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcoot/globalchat/internal/api/response"
	"github.com/mcoot/globalchat/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

// printJSON writes one compact document per line so streams stay line-delimited
func (o *Output) printJSON(data any) {
	_ = json.NewEncoder(o.w).Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case LoginResult:
		o.printLoginResult(v)
	case model.GlobalMessagePayload:
		o.printMessage(v)
	case model.OnlineUsersPayload:
		o.printOnline(v)
	case response.Health:
		_, _ = fmt.Fprintf(o.w, "Status: %s\nConnections: %d\nSessions: %d\n", v.Status, v.Connections, v.Sessions)
	case response.Me:
		o.printMe(v)
	case response.Account:
		_, _ = fmt.Fprintf(o.w, "Account: %s\nLevel: %d\nExperience: %d\n", v.Username, v.Level, v.Experience)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printLoginResult(r LoginResult) {
	guestStr := "no"
	if r.Guest {
		guestStr = "yes"
	}
	_, _ = fmt.Fprintf(o.w, "Logged in as: %s\n", r.Username)
	_, _ = fmt.Fprintf(o.w, "Guest: %s\n", guestStr)
}

func (o *Output) printMessage(m model.GlobalMessagePayload) {
	ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04:05")
	_, _ = fmt.Fprintf(o.w, "[%s] %s: %s\n", ts, m.User, m.Text)
}

func (o *Output) printOnline(p model.OnlineUsersPayload) {
	_, _ = fmt.Fprintf(o.w, "Online (%d):\n", len(p.Users))
	for _, u := range p.Users {
		_, _ = fmt.Fprintf(o.w, "  - %s (%s)\n", u.User, u.Status)
	}
}

func (o *Output) printMe(m response.Me) {
	guestStr := "no"
	if m.Guest {
		guestStr = "yes"
	}
	_, _ = fmt.Fprintf(o.w, "User: %s\n", m.Username)
	_, _ = fmt.Fprintf(o.w, "Guest: %s\n", guestStr)
}
