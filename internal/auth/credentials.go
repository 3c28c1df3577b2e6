package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credential is one operator login for the admin panel.
type Credential struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"`
	Level        string   `yaml:"level"`
	Permissions  []string `yaml:"permissions"`
}

func isBcrypt(s string) bool { return strings.HasPrefix(s, "$2") }

// MatchSecret compares candidate against a configured secret that may be a
// bcrypt hash or a plain value.
func MatchSecret(configured, candidate string) bool {
	if configured == "" || candidate == "" {
		return false
	}
	if isBcrypt(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(candidate)) == 1
}

// CheckCredentials finds the credential for username and verifies password.
func CheckCredentials(creds []Credential, username, password string) (Credential, bool) {
	for _, c := range creds {
		if c.Username != username {
			continue
		}
		if MatchSecret(c.PasswordHash, password) {
			return c, true
		}
		return Credential{}, false
	}
	return Credential{}, false
}

// HashPassword is used by the -hash-password flag to produce config values.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
