package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/globalchat/internal/api/middleware"
	"github.com/mcoot/globalchat/internal/api/response"
	"github.com/mcoot/globalchat/internal/model"
	"github.com/mcoot/globalchat/internal/services/accounts"
)

// Roster exposes the presence snapshot
type Roster interface {
	Snapshot() []model.RosterEntry
	SessionCount() int
}

// Connections counts live websocket connections
type Connections interface {
	ClientCount() int
}

// AccountReader looks up accounts
type AccountReader interface {
	Get(ctx context.Context, username string) (*model.Account, error)
}

// ChatHandler serves read-only views of chat state
type ChatHandler struct {
	roster      Roster
	connections Connections
	accounts    AccountReader
}

// NewChatHandler creates a new chat handler
func NewChatHandler(roster Roster, connections Connections, accounts AccountReader) *ChatHandler {
	return &ChatHandler{
		roster:      roster,
		connections: connections,
		accounts:    accounts,
	}
}

// Health handles GET /api/v1/health
func (h *ChatHandler) Health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{
		Status:      "ok",
		Connections: h.connections.ClientCount(),
		Sessions:    h.roster.SessionCount(),
	})
}

// Online handles GET /api/v1/online
func (h *ChatHandler) Online(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, model.OnlineUsersFromRoster(h.roster.Snapshot()))
}

// GetAccount handles GET /api/v1/accounts/{username}
func (h *ChatHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if !accounts.ValidUsername(username) {
		WriteError(w, model.ErrInvalidUsername)
		return
	}

	account, err := h.accounts.Get(r.Context(), username)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.AccountFromModel(account))
}

// Me handles GET /api/v1/me
func (h *ChatHandler) Me(w http.ResponseWriter, r *http.Request) {
	token := middleware.MustGetToken(r.Context())
	response.JSON(w, http.StatusOK, response.MeFromToken(token))
}
