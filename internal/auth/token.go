package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken creates a new session token: faxgw-{40 random alphanumeric chars}.
func GenerateToken() (string, error) {
	random, err := randomString(40)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return "faxgw-" + random, nil
}

// HashToken returns the SHA-256 hex digest of a session token. Only hashes
// are stored or cached.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}
