// Package logging builds the service's zerolog logger and the HTTP middleware
// that hands a request-scoped logger to handlers through the context.
package logging

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/KAsare1/Kodefx-capital/cmd/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// New returns a logger writing JSON lines to out, or human readable lines when
// format is "console". A nil out means stderr.
func New(level, format string, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	switch strings.ToLower(format) {
	case "", "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("LOG_FORMAT: unknown format %q", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "kodefx-capital").Logger(), nil
}

// Middleware tags every request with a request id, puts a logger carrying it in
// the request context and logs the request once it completes.
func Middleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			logger := base.With().Str("request_id", requestID).Logger()
			ctx := logger.WithContext(r.Context())

			start := time.Now()
			sw := utils.NewStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			event := logger.Info()
			if sw.Status() >= http.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request handled")
		})
	}
}
