package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// newConfirmationToken returns a 64 character hex token from 32 bytes of
// CSPRNG output. Tokens are stored server side and compared by equality, so
// no further encoding is needed.
func newConfirmationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
