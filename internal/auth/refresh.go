package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	DefaultRefreshTTL = 30 * 24 * time.Hour
	refreshTokenBytes = 32
)

// NewRefreshToken returns an opaque token for the client and the hash to
// store. Only the hash is ever persisted.
func NewRefreshToken() (plain, hash string, err error) {
	plain, err = RandomHex(refreshTokenBytes)
	if err != nil {
		return "", "", err
	}
	return plain, HashRefreshToken(plain), nil
}

func HashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
