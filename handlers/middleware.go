package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CrowderSoup/retro-board/services"
)

type contextKey string

const identityContextKey contextKey = "identity"

type AuthMiddleware struct {
	authService *services.AuthService
}

func NewAuthMiddleware(authService *services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Auth verifies the bearer token of a relay handshake. Browsers cannot set
// headers on a websocket upgrade, so a `token` query parameter is accepted too.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			http.Error(w, "missing authorization", http.StatusUnauthorized)
			return
		}

		id, err := m.authService.VerifyJWT(tokenString)
		if err != nil {
			slog.Warn("relay handshake rejected", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		authParts := strings.SplitN(authHeader, " ", 2)
		if len(authParts) != 2 || authParts[0] != "Bearer" || authParts[1] == "" {
			return "", false
		}
		return authParts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// IdentityFrom returns the identity the middleware attached to ctx.
func IdentityFrom(ctx context.Context) (services.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(services.Identity)
	return id, ok
}
