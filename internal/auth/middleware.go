package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the values we store.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth enforces authentication on protected routes.
//
// The access token is read from the "accessToken" HttpOnly cookie, or from an
// "Authorization: Bearer" header for non-browser clients. A missing, expired
// or tampered token short-circuits with 401 before the handler runs; on
// success the user id from the token's subject claim is placed in the request
// context.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext retrieves the authenticated user's id set by RequireAuth.
// Returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// writeUnauthorized sends the 401 in the same JSON error shape the handler
// package uses, so clients see one error format across the API.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": "valid authentication required",
	})
}

// extractUserID pulls the access token from the cookie or the Authorization
// header and validates it.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie("accessToken"); err == nil && cookie.Value != "" {
		return tokens.ValidateAccess(cookie.Value)
	}

	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header { // no Bearer prefix
		return "", http.ErrNoCookie
	}
	return tokens.ValidateAccess(strings.TrimSpace(token))
}
