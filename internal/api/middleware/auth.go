package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/globalchat/internal/api/apierr"
	"github.com/mcoot/globalchat/internal/model"
)

type contextKey string

const tokenContextKey contextKey = "token"

// TokenResolver looks up bearer tokens
type TokenResolver interface {
	Resolve(ctx context.Context, value string) (*model.Token, error)
}

// Auth creates middleware that requires a valid chat token
func Auth(tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := extractToken(r)
			if value == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			token, err := tokens.Resolve(r.Context(), value)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// GetToken returns the authenticated token from the request context
func GetToken(ctx context.Context) *model.Token {
	token, _ := ctx.Value(tokenContextKey).(*model.Token)
	return token
}

// MustGetToken returns the authenticated token or panics
func MustGetToken(ctx context.Context) *model.Token {
	token := GetToken(ctx)
	if token == nil {
		panic("no token in context - auth middleware not applied?")
	}
	return token
}
