package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is package-private so no other package can read or shadow the
// values stored here.
type contextKey string

const instanceIDKey contextKey = "instanceID"

// HeaderName carries the instance token on API calls. Browsers cannot set
// headers on a WebSocket handshake, so the "token" query parameter is
// accepted as well.
const HeaderName = "X-Instance-Token"

// RequireInstance rejects requests without a valid instance token with 401
// and stores the token's instance id in the request context.
//
// It does not compare the id with the route: handlers do that with
// InstanceIDFromContext, because only they know which route parameter names
// the instance.
func RequireInstance(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			instanceID, err := extractInstanceID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid instance token required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), instanceIDKey, instanceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InstanceIDFromContext returns the instance id RequireInstance validated.
func InstanceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(instanceIDKey).(string)
	return id, ok && id != ""
}

// TokenFromRequest reads the token from the header, then the query string.
func TokenFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderName)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func extractInstanceID(r *http.Request, tokens *TokenService) (string, error) {
	return tokens.Validate(TokenFromRequest(r))
}
