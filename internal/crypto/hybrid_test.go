package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestHybridWrapUnwrapRoundTrip(t *testing.T) {
	senderPub, senderPriv, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	receiverPub, receiverPriv, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	fek, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	wrapped, err := HybridWrap(senderPriv, receiverPub, fek, nil)
	if err != nil {
		t.Fatalf("HybridWrap() error = %v", err)
	}

	// The receiver unwraps with its own private key and the sender's
	// public key; X25519 agreement is symmetric.
	got, err := HybridUnwrap(receiverPriv, senderPub, wrapped, nil)
	if err != nil {
		t.Fatalf("HybridUnwrap() error = %v", err)
	}
	if !bytes.Equal(got, fek) {
		t.Error("unwrapped FEK does not match original")
	}
}

func TestHybridUnwrapRejectsWrongKeyPair(t *testing.T) {
	senderPub, senderPriv, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	receiverPub, _, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	_, intruderPriv, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	fek, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	wrapped, err := HybridWrap(senderPriv, receiverPub, fek, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := HybridUnwrap(intruderPriv, senderPub, wrapped, nil); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication for wrong private key, got %v", err)
	}
}

func TestHybridUnwrapRejectsTamperedBlob(t *testing.T) {
	senderPub, senderPriv, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	receiverPub, receiverPriv, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	fek, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	wrapped, err := HybridWrap(senderPriv, receiverPub, fek, nil)
	if err != nil {
		t.Fatal(err)
	}

	wrapped[len(wrapped)-1] ^= 0x01
	if _, err := HybridUnwrap(receiverPriv, senderPub, wrapped, nil); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication for tampered blob, got %v", err)
	}
}

// A custom augmenter changes the wrapping key, so blobs wrapped with
// different augmenters are mutually indecipherable.
func TestHybridWrapAugmenterIsPartOfTheKey(t *testing.T) {
	senderPub, senderPriv, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	receiverPub, receiverPriv, err := GenerateExchangeKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	fek, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	fixed := augmenterFunc(func(shared []byte) ([]byte, error) {
		out := make([]byte, KeySize)
		copy(out, "fixed secondary secret")
		return out, nil
	})

	wrapped, err := HybridWrap(senderPriv, receiverPub, fek, fixed)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := HybridUnwrap(receiverPriv, senderPub, wrapped, nil); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("default augmenter unwrapped a custom-augmented blob: %v", err)
	}

	got, err := HybridUnwrap(receiverPriv, senderPub, wrapped, fixed)
	if err != nil {
		t.Fatalf("HybridUnwrap() with matching augmenter error = %v", err)
	}
	if !bytes.Equal(got, fek) {
		t.Error("unwrapped FEK does not match original")
	}
}

type augmenterFunc func(shared []byte) ([]byte, error)

func (f augmenterFunc) Augment(shared []byte) ([]byte, error) { return f(shared) }
