// Package middleware holds the server's own HTTP middleware. chi's
// middleware package covers request ids, real IPs and panic recovery; this
// package adds the access log.
//
// MIDDLEWARE SHAPE:
//
//	func Name(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // before
//	        next.ServeHTTP(w, r)
//	        // after
//	    })
//	}
package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// recorder remembers the status and byte count a handler produced, which
// http.ResponseWriter does not expose afterwards.
type recorder struct {
	http.ResponseWriter
	status   int
	written  int64
	upgraded bool
}

func (rec *recorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

// Hijack passes through to the underlying writer. The WebSocket upgrade on
// /ws needs it.
func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	rec.upgraded = true
	return h.Hijack()
}

func (rec *recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logger logs one line per request with slog.
//
// LEVELS:
//   - 5xx is logged at Error, 4xx at Warn, everything else at Info.
//   - A WebSocket request logs when the socket closes, so its duration is
//     the connection's lifetime.
//
// request_id comes from chi's RequestID middleware and is empty when that
// middleware is not installed.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &recorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			msg := "request completed"
			if rec.upgraded {
				msg = "websocket closed"
			}
			logger.Log(r.Context(), levelFor(rec.status), msg,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.written),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
