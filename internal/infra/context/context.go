// Package context holds request-scoped values shared by transport, services and logging.
package context

type contextKey string
