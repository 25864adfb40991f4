package catalog

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes sizes the download token at 192 bits of entropy, above
// the 128-bit floor the capability model requires.
const tokenBytes = 24

// newDownloadToken returns a cryptographically random, URL-safe token.
func newDownloadToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate download token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
