package credential

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"
)

//nolint:gochecknoglobals
var digestPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// IsDigest reports whether a stored value already has the digest form.
func IsDigest(stored string) bool {
	return digestPattern.MatchString(stored)
}

// Verify compares a provided secret against a stored value of unknown format.
// A stored digest is compared case-insensitively with the digest of provided.
// Anything else is raw legacy input and is digested before comparing.
// Any failure yields false.
func Verify(provided, stored string) bool {
	if stored == "" {
		return false
	}

	want, err := Digest(provided)
	if err != nil {
		return false
	}

	got := strings.ToLower(stored)

	if !IsDigest(stored) {
		if got, err = Digest(stored); err != nil {
			return false
		}
	}

	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Encode returns the only form in which a new secret is ever persisted.
func Encode(provided string) (string, error) {
	digest, err := Digest(provided)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}

	return digest, nil
}
