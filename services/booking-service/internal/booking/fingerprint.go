package booking

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprint hashes the canonical fields of a request so an
// idempotency key can be pinned to exactly one payload. Fields are
// NUL-separated to keep adjacent values from running together.
func fingerprint(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
