package credential

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/md4" //nolint:staticcheck
	"golang.org/x/text/encoding/unicode"
)

// ErrDigestUnavailable is returned when the MD4 hash has not been registered.
var ErrDigestUnavailable = errors.New("md4 digest unavailable")

// DigestSize is the length of a rendered digest in hex characters.
const DigestSize = md4.Size * 2

//nolint:gochecknoglobals
var registerOnce sync.Once

// Init registers the legacy MD4 hash with the crypto hash registry.
// It must be called once at process start; further calls are no-ops.
func Init() error {
	registerOnce.Do(func() {
		if !crypto.MD4.Available() {
			crypto.RegisterHash(crypto.MD4, md4.New)
		}
	})

	if !crypto.MD4.Available() {
		return ErrDigestUnavailable
	}

	return nil
}

// Digest computes the legacy credential digest: MD4 over the UTF-16LE code
// units of text, rendered as lowercase hex. It matches the digests already
// stored in the member table and must not be used for anything else.
func Digest(text string) (string, error) {
	if !crypto.MD4.Available() {
		return "", ErrDigestUnavailable
	}

	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(text))
	if err != nil {
		return "", fmt.Errorf("encode utf-16le: %w", err)
	}

	hasher := crypto.MD4.New()
	hasher.Write(encoded)

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
