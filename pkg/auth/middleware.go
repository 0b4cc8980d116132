package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Authenticator resolves the credential stored in ctx to a user.
type Authenticator interface {
	Authenticate(ctx context.Context) (*UserContext, error)
}

// ChainedAuthenticator tries multiple authenticators in order.
type ChainedAuthenticator struct {
	authenticators []Authenticator
}

// NewChainedAuthenticator creates a new chained authenticator.
func NewChainedAuthenticator(authenticators ...Authenticator) *ChainedAuthenticator {
	return &ChainedAuthenticator{authenticators: authenticators}
}

// Authenticate returns the first user any authenticator accepts.
func (c *ChainedAuthenticator) Authenticate(ctx context.Context) (*UserContext, error) {
	var lastErr error
	for _, a := range c.authenticators {
		uc, err := a.Authenticate(ctx)
		if err == nil && uc != nil {
			return uc, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("authentication failed")
}

var _ Authenticator = (*ChainedAuthenticator)(nil)

// tokenFromRequest extracts a bearer token, an X-API-Key header, or, for
// WebSocket upgrades that cannot set headers, an access_token query value.
func tokenFromRequest(r *http.Request) string {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("access_token")
}

// Middleware authenticates every request with a and stores the user in
// the request context. Requests without valid credentials get 401.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeAuthError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}

			ctx := WithToken(r.Context(), token)
			uc, err := a.Authenticate(ctx)
			if err != nil {
				slog.Debug("authentication failed", "path", r.URL.Path, "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeAuthError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserContext(ctx, uc)))
		})
	}
}

// RequireRole returns middleware that rejects authenticated users holding
// none of roles with 403. It must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uc := GetUserContext(r.Context())
			if uc == nil || !uc.HasAnyRole(roles...) {
				writeAuthError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	code := "unauthorized"
	if status == http.StatusForbidden {
		code = "forbidden"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
