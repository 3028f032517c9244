package utils

import (
	"crypto/rand"
	"encoding/hex"
)

func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandString returns n/2 random bytes hex-encoded, so the result is n chars
// long for even n.
func RandString(n int) (string, error) {
	b, err := RandBytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:n], nil
}
