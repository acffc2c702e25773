package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/dh/x25519"
	"golang.org/x/crypto/blake2s"
)

const (
	hybridWrapInfo = "suraksh-fek-wrap"
	hybridWrapAAD  = "fek-wrap"

	augmenterDomainTag = "pqcdemo"
)

// ErrSharedSecret is returned when the X25519 exchange produces a
// low-order result and no shared secret can be agreed.
var ErrSharedSecret = errors.New("failed to compute shared secret")

// SecretAugmenter supplies the secondary shared secret mixed into the
// hybrid wrapping key alongside the X25519 shared secret. The default
// implementation derives it by hashing the elliptic-curve secret with a
// fixed domain tag; it stands in for a real post-quantum KEM and can be
// replaced without touching the wrapping protocol.
type SecretAugmenter interface {
	Augment(shared []byte) ([]byte, error)
}

type hashAugmenter struct{}

func (hashAugmenter) Augment(shared []byte) ([]byte, error) {
	buf := make([]byte, 0, len(shared)+len(augmenterDomainTag))
	buf = append(buf, shared...)
	buf = append(buf, augmenterDomainTag...)
	sum := blake2s.Sum256(buf)
	return sum[:], nil
}

// DefaultAugmenter is the hash-derived stand-in secondary secret.
var DefaultAugmenter SecretAugmenter = hashAugmenter{}

// GenerateExchangeKeyPair creates a new X25519 keypair for hybrid key
// wrapping.
func GenerateExchangeKeyPair() (public, private x25519.Key, err error) {
	if _, err = rand.Read(private[:]); err != nil {
		return public, private, fmt.Errorf("failed to generate exchange key: %w", err)
	}
	x25519.KeyGen(&public, &private)
	return public, private, nil
}

// HybridWrap encrypts fek under a key derived from the X25519 shared
// secret between localPrivate and peerPublic, augmented by the supplied
// secondary secret. A nil augmenter uses DefaultAugmenter.
func HybridWrap(localPrivate, peerPublic x25519.Key, fek []byte, augmenter SecretAugmenter) ([]byte, error) {
	wrapKey, err := hybridWrapKey(localPrivate, peerPublic, augmenter)
	if err != nil {
		return nil, err
	}
	return Encrypt(wrapKey, fek, []byte(hybridWrapAAD))
}

// HybridUnwrap is the exact mirror of HybridWrap. A blob wrapped for a
// different key pair fails with ErrAuthentication.
func HybridUnwrap(localPrivate, peerPublic x25519.Key, wrapped []byte, augmenter SecretAugmenter) ([]byte, error) {
	wrapKey, err := hybridWrapKey(localPrivate, peerPublic, augmenter)
	if err != nil {
		return nil, err
	}
	return Decrypt(wrapKey, wrapped, []byte(hybridWrapAAD))
}

func hybridWrapKey(private, public x25519.Key, augmenter SecretAugmenter) ([]byte, error) {
	var shared x25519.Key
	if ok := x25519.Shared(&shared, &private, &public); !ok {
		return nil, ErrSharedSecret
	}

	if augmenter == nil {
		augmenter = DefaultAugmenter
	}
	secondary, err := augmenter.Augment(shared[:])
	if err != nil {
		return nil, fmt.Errorf("failed to derive secondary secret: %w", err)
	}

	material := make([]byte, 0, len(shared)+len(secondary))
	material = append(material, shared[:]...)
	material = append(material, secondary...)

	return DeriveKey(material, nil, []byte(hybridWrapInfo), KeySize)
}
