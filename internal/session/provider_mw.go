package session

import (
	"context"
	"net/http"

	"Storefront/internal/product"
	"Storefront/pkg/kit"
)

type ctxKey string

const sessionKey ctxKey = "session"

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok
}

// RequireSession resolves the bearer session token to its session and
// installs the session's store as the request's product provider. Browsers
// cannot set headers on EventSource, so GET requests may pass the token as
// ?access_token= instead.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := kit.BearerToken(r)
		if !ok && r.Method == http.MethodGet {
			tok = r.URL.Query().Get("access_token")
			ok = tok != ""
		}
		if !ok {
			kit.WriteError(w, r, http.StatusUnauthorized, "missing token", nil)
			return
		}

		claims, err := s.Tokens.Parse(tok)
		if err != nil {
			kit.WriteError(w, r, http.StatusUnauthorized, "invalid token", nil)
			return
		}

		sess, err := s.Registry.Get(claims.SessionID)
		if err != nil {
			kit.WriteError(w, r, http.StatusUnauthorized, "session expired", map[string]any{"session_id": claims.SessionID})
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		ctx = product.NewContext(ctx, sess.Store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
