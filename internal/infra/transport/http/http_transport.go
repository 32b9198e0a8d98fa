package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mkrupp/memberfed/internal/infra/logging"
)

// HTTPTransportConfig contains configuration parameters for HTTP servers.
type HTTPTransportConfig struct {
	// ServerAddr is the network address to listen on
	ServerAddr string `env:"SERVER_ADDR" default:":8080"`

	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" default:"5s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	// APIKeys lists the "client:key" pairs accepted from identity hosts
	APIKeys []string `env:"API_KEYS" default:""`

	// InsecureNoAuth serves requests without API key authorization
	InsecureNoAuth bool `env:"INSECURE_NO_AUTH" default:"false"`
}

// ErrNoAPIKeys is returned when a server is started without API keys
// and without InsecureNoAuth.
var ErrNoAPIKeys = errors.New("no api keys configured")

// HTTPTransport defines the interface for HTTP handlers that can serve requests.
type HTTPTransport interface {
	http.Handler
}

// HTTPHandlerFunc converts an HTTPTransport into a standard http.HandlerFunc.
// This allows using HTTPTransport implementations with standard HTTP middleware.
func HTTPHandlerFunc(handler HTTPTransport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}
}

// Handler wraps handler with the standard middleware chain: tracing, metrics,
// logging, panic recovery and API key authorization, outermost first.
// Authorization is left out only when cfg.InsecureNoAuth is set. metrics may be nil.
func Handler(handler HTTPTransport, cfg HTTPTransportConfig, log logging.Logger, metrics *HTTPMetrics) http.Handler {
	if !cfg.InsecureNoAuth {
		handler = AuthorizingMiddleware(handler, cfg.APIKeys, log)
	}

	handler = RescueingMiddleware(handler, log)
	handler = LoggingMiddleware(handler, log)
	handler = MetricsMiddleware(handler, metrics)
	handler = TracingMiddleware(handler)

	return handler
}

// ListenAndServe starts an HTTP server with the given handler and configuration
// and serves until ctx is cancelled, then shuts down gracefully.
// Returns an error if the server fails to start or encounters an error while running.
func ListenAndServe(
	ctx context.Context,
	handler HTTPTransport,
	cfg HTTPTransportConfig,
	metrics *HTTPMetrics,
) (err error) {
	log := logging.GetLogger("infra.transport.http")

	if len(cfg.APIKeys) == 0 && !cfg.InsecureNoAuth {
		return ErrNoAPIKeys
	}

	if cfg.InsecureNoAuth {
		log.WarnContext(ctx, "api key authorization disabled")
	}

	//nolint:exhaustruct
	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           Handler(handler, cfg, log, metrics),
		ErrorLog:          logging.GetLogLogger(log, logging.LevelError),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	defer server.Close()

	sock, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer sock.Close()

	log.DebugContext(ctx, "listening", "addr", sock.Addr().String())

	go func() {
		<-ctx.Done()

		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.ErrorContext(shutdownCtx, "shutdown failed", "error", err)
		}
	}()

	if err := server.Serve(sock); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}
