package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

// NewOpaqueToken returns n random bytes hex-encoded, so the resulting
// string is 2n characters long.
func NewOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
