package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/globalchat/internal/api/apierr"
	"github.com/mcoot/globalchat/internal/middleware"
)

// Logging creates request logging middleware for the API
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Logging(logger)
}

// Recovery creates panic recovery middleware that answers with a JSON error
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, func(w http.ResponseWriter, _ *http.Request, _ any) {
		apierr.WriteError(w, apierr.NewInternalError())
	})
}

// Standard returns the router-wide middleware in application order.
// Logging wraps recovery so a recovered panic is still logged with its status.
func Standard(logger *slog.Logger) []mux.MiddlewareFunc {
	return []mux.MiddlewareFunc{
		Logging(logger),
		Recovery(logger),
	}
}
