package account

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const resetTokenBytes = 16

// TokenGenerator produces reset tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// TokenFunc adapts a plain function to TokenGenerator.
type TokenFunc func() (string, error)

func (f TokenFunc) NewToken() (string, error) { return f() }

// RandomHex returns a TokenGenerator yielding 32 lower-case hex characters
// from 16 bytes of crypto/rand.
func RandomHex() TokenGenerator {
	return TokenFunc(func() (string, error) {
		raw := make([]byte, resetTokenBytes)
		if _, err := rand.Read(raw); err != nil {
			return "", fmt.Errorf("read random token: %w", err)
		}
		return hex.EncodeToString(raw), nil
	})
}
