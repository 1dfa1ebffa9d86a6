package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippetvault/internal/metrics"
)

// unmatchedRoute labels requests no route matched, so arbitrary paths can't
// blow up the label cardinality.
const unmatchedRoute = "unmatched"

// Metrics records every request in m, labelled by chi's route pattern
// ("/api/snippets/{id}") rather than the raw path. It must be installed with
// Use on the root router: the pattern is only complete once routing is done,
// which is after next returns.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.HTTPRequest(r.Method, route, rec.status, time.Since(start))
		})
	}
}
