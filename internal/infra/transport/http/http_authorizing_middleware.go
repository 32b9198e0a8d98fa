package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	context_ "github.com/mkrupp/memberfed/internal/infra/context"
	"github.com/mkrupp/memberfed/internal/infra/logging"
)

// AuthorizingMiddleware creates middleware that admits only identity hosts
// presenting one of the configured API keys as a Bearer token.
// Keys have the form "client:key"; a key without a client name is reported as "host".
// An empty key list rejects every request.
// On success, the client name is added to the request context.
func AuthorizingMiddleware(
	next http.Handler,
	apiKeys []string,
	log logging.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(apiKeys) == 0 {
			log.ErrorContext(r.Context(), "no api keys configured")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			log.WarnContext(r.Context(), "no api key provided")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

			return
		}

		client, ok := matchAPIKey(apiKeys, strings.TrimSpace(token))
		if !ok {
			log.WarnContext(r.Context(), "invalid api key")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r.WithContext(context_.WithClient(r.Context(), client)))
	})
}

func matchAPIKey(apiKeys []string, token string) (string, bool) {
	var (
		matched string
		found   bool
	)

	// every key is compared, even after a match
	for _, entry := range apiKeys {
		client, key, hasClient := strings.Cut(entry, ":")
		if !hasClient {
			client, key = "host", entry
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 && !found {
			matched, found = client, true
		}
	}

	return matched, found
}
