package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"lungsod-rms/core/utils"
)

// GenerateCSRF derives a per-session token bound to the session id, with a
// random component so tokens differ across rotations.
func GenerateCSRF(key, sessionID string) (string, error) {
	nonce, err := utils.RandString(16)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(sessionID))
	mac.Write([]byte(nonce))
	return nonce + "." + hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyCSRF checks a presented token against the stored one in constant
// time. The stored token is the source of truth; the HMAC binding only
// matters at generation.
func VerifyCSRF(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return hmac.Equal([]byte(stored), []byte(presented))
}
