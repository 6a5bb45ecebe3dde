package kit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const unmatchedRoute = "unmatched"

// ChiRoutePatternOrPath labels a request by its route pattern so ids in the
// path do not become separate series. Unrouted requests share one label.
func ChiRoutePatternOrPath(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return unmatchedRoute
	}
	if rp := rc.RoutePattern(); rp != "" {
		return rp
	}
	return unmatchedRoute
}
