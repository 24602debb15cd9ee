// Package secrets seals provider credentials with authenticated
// encryption and resolves them per request from an ordered list of
// sources.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Sealed blob layout: salt | nonce | tag | ciphertext, base64 encoded.
const (
	saltLen  = 16
	nonceLen = 12
	tagLen   = 16

	scryptN = 32768
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

// ErrDecrypt is returned when a blob cannot be opened: wrong secret,
// corruption, or tampering. The GCM tag check guarantees no garbage
// plaintext is ever returned.
var ErrDecrypt = errors.New("credential decryption failed")

// ErrMalformed is returned for blobs that do not parse as sealed data.
var ErrMalformed = errors.New("malformed credential blob")

func deriveKey(secret string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keyLen)
}

// Seal encrypts plaintext under a key derived from the operator secret
// and a fresh random salt.
func Seal(plaintext, secret string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key, err := deriveKey(secret, salt)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	blob := make([]byte, 0, saltLen+nonceLen+tagLen+len(ct))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Open decrypts a sealed blob. A wrong secret or a tampered blob yields
// ErrDecrypt, never altered plaintext.
func Open(blob, secret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < saltLen+nonceLen+tagLen {
		return "", ErrMalformed
	}

	salt := raw[:saltLen]
	nonce := raw[saltLen : saltLen+nonceLen]
	tag := raw[saltLen+nonceLen : saltLen+nonceLen+tagLen]
	ct := raw[saltLen+nonceLen+tagLen:]

	key, err := deriveKey(secret, salt)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	// Reassemble ciphertext||tag, the order gcm.Open expects.
	sealed := make([]byte, 0, len(ct)+tagLen)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// LooksSealed reports whether a stored value parses as a sealed blob.
// Legacy databases may hold plaintext keys; acceptance of those is gated
// by configuration, not by this heuristic alone.
func LooksSealed(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return len(raw) >= saltLen+nonceLen+tagLen
}
