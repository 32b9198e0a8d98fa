package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	context_ "github.com/mkrupp/memberfed/internal/infra/context"
	"github.com/mkrupp/memberfed/internal/infra/logging"
)

// ResponseRecorder wraps http.ResponseWriter to capture the status and size
// of the response.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	BytesSent  int
	Written    bool
}

// NewResponseRecorder wraps w, reusing it if it already is a recorder.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	if rec, ok := w.(*ResponseRecorder); ok {
		return rec
	}

	return &ResponseRecorder{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
		BytesSent:      0,
		Written:        false,
	}
}

func (w *ResponseRecorder) WriteHeader(code int) {
	if !w.Written {
		w.StatusCode = code
		w.Written = true
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *ResponseRecorder) Write(b []byte) (int, error) {
	w.Written = true
	w.BytesSent += len(b)

	n, err := w.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}

	return n, nil
}

// LoggingMiddleware logs each request at DEBUG and its response at a level
// chosen by status: ERROR for 5xx, WARN for 4xx, INFO otherwise.
// Request bodies are never logged since they carry credentials.
func LoggingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	//nolint:varnamelen
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		log.DebugContext(r.Context(), "request", slog.Group("http",
			"path", r.URL.Path,
			"method", r.Method,
		))

		rec := NewResponseRecorder(w)

		next.ServeHTTP(rec, r)

		var level logging.Level

		switch {
		case rec.StatusCode >= http.StatusInternalServerError:
			level = logging.LevelError
		case rec.StatusCode >= http.StatusBadRequest:
			level = logging.LevelWarn
		default:
			level = logging.LevelInfo
		}

		attrs := []any{
			"path", r.URL.Path,
			"method", r.Method,
			"status", rec.StatusCode,
			"bytes_sent", rec.BytesSent,
			"duration", time.Since(start),
		}

		if client, ok := context_.ClientFromContext(r.Context()); ok {
			attrs = append(attrs, "client", client)
		}

		log.Log(r.Context(), level, "response", slog.Group("http", attrs...))
	})
}
