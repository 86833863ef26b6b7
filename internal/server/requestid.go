package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/triageflow/triageflow/internal/audit"
)

// RequestIDMiddleware tags each request with a uuid, echoed back in the
// X-Request-ID header. The id rides the context into the pipeline, which
// records it on the transaction's received record so a trail can be traced
// back to the request that started it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(audit.WithRequestID(r.Context(), id)))
	})
}
