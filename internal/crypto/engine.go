package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of all symmetric keys in bytes (256 bits).
	KeySize = 32

	// NonceSize is the AES-GCM nonce size in bytes.
	NonceSize = 12

	// TagSize is the AES-GCM authentication tag size in bytes.
	TagSize = 16
)

var (
	// ErrInvalidKeySize is returned when a key is not KeySize bytes long.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrAuthentication is returned when an authentication tag does not
	// verify or the associated data does not match. Callers must treat
	// this as tampering or corruption, never as recoverable noise.
	ErrAuthentication = errors.New("authentication failed")
)

// GenerateKey returns a fresh 256-bit key from the system CSPRNG.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under key, binding aad as
// associated data. A fresh random nonce is generated per call; the
// returned blob is nonce || ciphertext || tag.
//
// Nonce reuse under the same key is a correctness violation. It is not
// checked at runtime: callers must generate a fresh key rather than
// reuse one across independent contexts.
func Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err = rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Decrypt opens a blob produced by Encrypt. It fails with
// ErrAuthentication if the tag does not verify or aad differs from the
// value bound at encryption time, and never returns partial plaintext.
func Decrypt(key, blob, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: blob too short", ErrAuthentication)
	}

	plaintext, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// DeriveKey derives length bytes from material using HKDF-SHA256.
// Distinct purposes must use distinct info labels so that compromise of
// one derived key does not reveal another.
func DeriveKey(material, salt, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, salt, info), out); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return out, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), KeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return cipher.NewGCM(block)
}
