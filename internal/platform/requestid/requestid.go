// Package requestid mints the identifiers carried in the X-Request-Id
// header between the coordinator, the workers, and clients. The id travels
// with every dispatched invocation so a flag sequence in a response can be
// traced back through both services' logs.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a fresh 128-bit identifier as 32 hex characters.
func New() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
