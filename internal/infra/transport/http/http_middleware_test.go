package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	context_ "github.com/mkrupp/memberfed/internal/infra/context"
	"github.com/mkrupp/memberfed/internal/infra/logging"
	. "github.com/mkrupp/memberfed/internal/infra/transport/http"
)

func echoClient() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _ := context_.ClientFromContext(r.Context())
		traceID, _ := context_.TraceIDFromContext(r.Context())

		w.Header().Set("X-Client", client)
		w.Header().Set("X-Trace", traceID)
	})
}

func TestAuthorizingMiddleware(t *testing.T) {
	t.Parallel()

	handler := AuthorizingMiddleware(echoClient(), []string{"keycloak:k1", "bare-key"}, logging.NewNopLogger())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantClient string
	}{
		{name: "named key", header: "Bearer k1", wantStatus: http.StatusOK, wantClient: "keycloak"},
		{name: "key without client", header: "Bearer bare-key", wantStatus: http.StatusOK, wantClient: "host"},
		{name: "wrong key", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic k1", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/members/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if got := rec.Header().Get("X-Client"); got != tt.wantClient {
				t.Errorf("client = %q, want %q", got, tt.wantClient)
			}
		})
	}
}

func TestAuthorizingMiddleware_NoKeys(t *testing.T) {
	t.Parallel()

	handler := AuthorizingMiddleware(echoClient(), nil, logging.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandler_Authorization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  HTTPTransportConfig
		want int
	}{
		{name: "no keys", cfg: HTTPTransportConfig{}, want: http.StatusUnauthorized},
		{name: "insecure opt-out", cfg: HTTPTransportConfig{InsecureNoAuth: true}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := Handler(echoClient(), tt.cfg, logging.NewNopLogger(), nil)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestListenAndServe_RequiresAPIKeys(t *testing.T) {
	t.Parallel()

	err := ListenAndServe(context.Background(), echoClient(), HTTPTransportConfig{ServerAddr: "127.0.0.1:0"}, nil)
	if !errors.Is(err, ErrNoAPIKeys) {
		t.Errorf("err = %v, want %v", err, ErrNoAPIKeys)
	}
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	handler := TracingMiddleware(echoClient())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "given-id")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Trace"); got != "given-id" {
		t.Errorf("trace id = %q, want given-id", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get(TraceIDHeader); len(got) != 36 {
		t.Errorf("generated trace id = %q, want uuid", got)
	}
}

func TestRescueingMiddleware(t *testing.T) {
	t.Parallel()

	handler := RescueingMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), logging.NewNopLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestRescueingMiddleware_ResponseStarted(t *testing.T) {
	t.Parallel()

	handler := RescueingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}), logging.NewNopLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	metrics := NewHTTPMetrics(prometheus.NewRegistry(), "test")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
		}
	}), metrics)

	for _, path := range []string{"/", "/", "/missing"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(http.MethodGet, "200")); got != 2 {
		t.Errorf("200 count = %v, want 2", got)
	}

	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(http.MethodGet, "404")); got != 1 {
		t.Errorf("404 count = %v, want 1", got)
	}
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	t.Parallel()

	var seen *ResponseRecorder

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen, _ = w.(*ResponseRecorder)

		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), logging.NewNopLogger())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == nil {
		t.Fatal("handler did not receive a ResponseRecorder")
	}

	if seen.StatusCode != http.StatusTeapot || seen.BytesSent != 15 {
		t.Errorf("recorded status %d, %d bytes", seen.StatusCode, seen.BytesSent)
	}
}
