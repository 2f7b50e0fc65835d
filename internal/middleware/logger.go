package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"progresspal-web/internal/logging"
)

// RequestLogger attaches a request-scoped logger to the context and writes
// one line per request once it completes.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With().
				Str("request_id", r.Header.Get(RequestIDHeader)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := logging.WithContext(r.Context(), reqLogger)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			event := reqLogger.Info()
			if status >= http.StatusInternalServerError {
				event = reqLogger.Error()
			} else if status >= http.StatusBadRequest {
				event = reqLogger.Warn()
			}
			event.
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request")
		})
	}
}
