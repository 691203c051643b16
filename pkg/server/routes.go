package server

import (
	"net/http"
)

// Handler returns the full HTTP handler: every route wrapped in the
// method, rate limit, cache and security header middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	rl := newRateLimitMiddleware(s.limiter)

	mux.Handle("/api", http.HandlerFunc(s.handleAPI))
	mux.Handle("/api/hosts/{hostname}", http.HandlerFunc(s.handleHostAPI))
	mux.Handle("/api/summary", http.HandlerFunc(s.handleSummaryAPI))
	mux.Handle("/metrics", http.HandlerFunc(s.handlePrometheus))

	return requireGET(rl(noCacheMiddleware(securityHeadersMiddleware(mux))))
}
