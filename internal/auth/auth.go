package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"oauth-bridge/internal/common/errors"
)

// Auth guards the management and proxy surfaces with a single static
// API key. Callers present it as "Authorization: Bearer <key>".
type Auth struct {
	apiKey string
}

func New(apiKey string) *Auth {
	return &Auth{apiKey: apiKey}
}

// Check validates the Authorization header of a request. It returns an
// authentication error when the header is missing, malformed, or carries
// the wrong key.
func (a *Auth) Check(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return errors.AuthError("missing authorization header")
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errors.AuthError("authorization header must use the Bearer scheme")
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(a.apiKey)) != 1 {
		return errors.AuthError("invalid API key")
	}
	return nil
}

// RequireAuth wraps a handler so it only runs for authenticated callers.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Check(r); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "Authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
