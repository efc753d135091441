package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/globalchat/internal/api/apierr"
	"github.com/mcoot/globalchat/internal/api/handler"
	"github.com/mcoot/globalchat/internal/api/middleware"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Gateway     http.Handler
	Roster      handler.Roster
	Connections handler.Connections
	Accounts    handler.AccountReader
	Tokens      middleware.TokenResolver
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	chatHandler := handler.NewChatHandler(cfg.Roster, cfg.Connections, cfg.Accounts)

	authMiddleware := middleware.Auth(cfg.Tokens)
	r.Use(middleware.Standard(cfg.Logger)...)

	// Full paths on the root router keep method mismatches at 405
	r.Handle("/ws", cfg.Gateway).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/health", chatHandler.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/online", chatHandler.Online).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/accounts/{username}", chatHandler.GetAccount).Methods(http.MethodGet)
	r.Handle("/api/v1/me", authMiddleware(http.HandlerFunc(chatHandler.Me))).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewNotFoundError())
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewMethodNotAllowedError())
	})

	return r
}
