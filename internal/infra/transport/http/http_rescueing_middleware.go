package http

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/mkrupp/memberfed/internal/infra/logging"
)

// RescueingMiddleware recovers from panics in HTTP handlers, logs the panic
// with its stack and answers 500 unless the response has already started.
func RescueingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := NewResponseRecorder(w)

		defer func(ctx context.Context) {
			p := recover()
			if p == nil {
				return
			}

			//nolint:errorlint
			if p == http.ErrAbortHandler {
				panic(p)
			}

			log.ErrorContext(ctx, "request panic", slog.Group("http",
				"path", r.URL.Path,
				"method", r.Method,
			), slog.Group("error",
				"panic", p,
				"stack", string(debug.Stack()),
			))

			if !rec.Written {
				http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}(r.Context())

		next.ServeHTTP(rec, r)
	})
}
