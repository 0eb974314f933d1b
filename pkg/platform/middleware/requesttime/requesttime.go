// Package requesttime captures one timestamp per request so every event
// ingested by that request carries the same created/updated time.
package requesttime

import (
	"net/http"
	"time"

	"insight/pkg/requestcontext"
)

// Middleware stores the request start time in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
