// Package credentials derives and checks salted password hashes.
package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes  = 32
	keyBytes   = 32
	iterations = 10000
)

var ErrEmptySalt = errors.New("salt cannot be empty")

// Hasher derives password hashes. The zero value is not usable; call New.
type Hasher struct {
	iterations int
}

// New returns a hasher using the default PBKDF2 iteration count.
func New() *Hasher {
	return &Hasher{iterations: iterations}
}

// GenerateSalt returns 32 random bytes, base64 encoded.
func (h *Hasher) GenerateSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Hash returns the base64 PBKDF2-SHA256 hash of password with salt.
func (h *Hasher) Hash(password, salt string) (string, error) {
	if salt == "" {
		return "", ErrEmptySalt
	}
	key := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, keyBytes, sha256.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

// HashNew generates a fresh salt and hashes password with it.
func (h *Hasher) HashNew(password string) (salt string, hash string, err error) {
	salt, err = h.GenerateSalt()
	if err != nil {
		return "", "", err
	}
	hash, err = h.Hash(password, salt)
	if err != nil {
		return "", "", err
	}
	return salt, hash, nil
}

// Verify reports whether password hashes to hash under salt.
func (h *Hasher) Verify(password, salt, hash string) bool {
	computed, err := h.Hash(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
