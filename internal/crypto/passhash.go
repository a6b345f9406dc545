// Package crypto implements server-side PIN hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// scheme prefixes every encoded PIN so legacy plaintext rows can be told apart.
const scheme = "argon2id$"

var b64 = base64.RawStdEncoding

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// EncodePIN hashes pin with a fresh salt and returns the storable form
// "argon2id$<salt>$<hash>".
func EncodePIN(pin string) (string, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	h := HashPassword([]byte(pin), salt)
	return scheme + b64.EncodeToString(salt) + "$" + b64.EncodeToString(h), nil
}

// IsEncoded reports whether stored holds an encoded hash rather than a legacy plaintext PIN.
func IsEncoded(stored string) bool { return strings.HasPrefix(stored, scheme) }

// VerifyPIN checks pin against the stored credential. Legacy plaintext
// credentials are compared in constant time and reported via legacy=true so
// the caller can re-encode them.
func VerifyPIN(pin, stored string) (ok, legacy bool) {
	if stored == "" {
		return false, false
	}
	if !IsEncoded(stored) {
		return subtle.ConstantTimeCompare([]byte(pin), []byte(stored)) == 1, true
	}
	parts := strings.Split(strings.TrimPrefix(stored, scheme), "$")
	if len(parts) != 2 {
		return false, false
	}
	salt, err := b64.DecodeString(parts[0])
	if err != nil {
		return false, false
	}
	want, err := b64.DecodeString(parts[1])
	if err != nil {
		return false, false
	}
	got := HashPassword([]byte(pin), salt)
	return subtle.ConstantTimeCompare(got, want) == 1, false
}
