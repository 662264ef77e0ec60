// Package hasher generates admin tokens and checks them against stored bcrypt hashes.
package hasher

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const cost = 10

func HashToken(token string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	return string(bytes), err
}

// TokenMatches is false for an empty token or hash.
func TokenMatches(token, hash string) bool {
	token, hash = strings.TrimSpace(token), strings.TrimSpace(hash)
	if token == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// GenerateToken returns a URL-safe token carrying length random bytes.
func GenerateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
