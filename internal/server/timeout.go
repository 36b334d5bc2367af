package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware enforces per-request deadlines. It cancels the request
// context rather than forcibly terminating the handler; the pipeline checks
// the context at its suspension points and records a timeout outcome.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
