package middleware

import (
	"fmt"
	"net/http"

	"github.com/phuslu/log"

	"github.com/cloo-solutions/docuhub/internal/api"
)

// MaxBodyBytes rejects declared oversize bodies up front and caps the rest
// with http.MaxBytesReader, which the upload handler turns into a 413.
// A non-positive limit disables the check.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	tooLarge := fmt.Sprintf("request body exceeds %d bytes", limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				log.Debug().
					Int64("content_length", r.ContentLength).
					Int64("limit", limit).
					Str("request_id", GetRequestID(r.Context())).
					Msg("upload rejected: body too large")
				w.Header().Set("Connection", "close")
				api.Error(w, http.StatusRequestEntityTooLarge, tooLarge)
				return
			}

			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
