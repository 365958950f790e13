package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	SaltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashPassword derives an argon2id hash using a fresh random salt.
// The same plaintext and salt always produce the same hash.
func HashPassword(plaintext string) (hash, salt []byte, err error) {
	salt = make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	return derive(plaintext, salt), salt, nil
}

// VerifyPassword recomputes the hash with the stored salt and compares in
// constant time.
func VerifyPassword(plaintext string, hash, salt []byte) bool {
	if len(hash) == 0 || len(salt) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(derive(plaintext, salt), hash) == 1
}

func derive(plaintext string, salt []byte) []byte {
	return argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
