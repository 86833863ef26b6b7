package server

import (
	"context"
	"net/http"
	"time"
)

const defaultRequestTimeout = 60 * time.Second

// requestTimeout bounds each request by the configured server timeout.
// Cancellation is cooperative: the classifier and the store observe the
// context, so an overrunning transaction surfaces as a failed pipeline run
// rather than a severed connection.
func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = defaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
