package logging

import (
	"log/slog"
	"strings"
)

// Redacted replaces the value of attributes that may carry credential material.
const Redacted = "[redacted]"

//nolint:gochecknoglobals
var secretKeys = map[string]struct{}{
	"password":   {},
	"secret":     {},
	"credential": {},
	"challenge":  {},
}

// RedactSecrets is a slog ReplaceAttr function masking credential attributes.
// Keys are matched case-insensitively at any group depth.
func RedactSecrets(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(attr.Key)]; ok {
		return slog.String(attr.Key, Redacted)
	}

	return attr
}
