package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jaysatani-27/buster-ai-sub003/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

// wsKeyParam carries the API key on WebSocket upgrades, where browsers cannot
// set request headers.
const wsKeyParam = "api_key"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware rejects requests without a valid key and stores the identity in
// the request context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, source := extractAPIKey(r)
			if apiKey == "" {
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				logger.WarnContext(r.Context(), "authentication failed",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.String("path", r.URL.Path),
					slog.String("key_source", source),
				)
				writeAuthError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
				return
			}
			logger.DebugContext(r.Context(), "authenticated",
				slog.String("api_key_id", identity.APIKeyID),
				slog.String("organization_id", identity.OrganizationID),
				slog.String("user_id", identity.UserID),
			)

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// extractAPIKey reads X-API-Key, then a bearer token, then (upgrades only)
// the api_key query parameter. The second result names where the key came
// from.
func extractAPIKey(r *http.Request) (string, string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "header"
	}
	if token, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token, "bearer"
		}
	}
	if isWebSocketUpgrade(r) {
		if key := strings.TrimSpace(r.URL.Query().Get(wsKeyParam)); key != "" {
			return key, "query"
		}
	}
	return "", ""
}

func isWebSocketUpgrade(r *http.Request) bool {
	return r.Method == http.MethodGet &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"context":    map[string]any{},
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
