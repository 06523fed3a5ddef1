package middleware

import "net/http"

// DefaultMaxBodyBytes matches the original server's 1 MiB JSON body limit.
const DefaultMaxBodyBytes int64 = 1 << 20

// MaxBody caps request bodies. Handlers see a read error once the limit is
// crossed and answer 413.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
