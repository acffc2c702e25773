package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestPermuteUnpermuteRoundTrip(t *testing.T) {
	sizes := []int{1, 2, 7, 16, 250, 4096, 100_000}

	seed := []byte("deterministic permutation seed")
	for _, size := range sizes {
		data := make([]byte, size)
		if _, err := rand.Read(data); err != nil {
			t.Fatal(err)
		}

		permuted := Permute(data, seed)
		if len(permuted) != len(data) {
			t.Fatalf("size %d: permuted length = %d", size, len(permuted))
		}

		restored := Unpermute(permuted, seed)
		if !bytes.Equal(restored, data) {
			t.Fatalf("size %d: unpermute(permute(x)) != x", size)
		}
	}
}

func TestPermuteEmptyInput(t *testing.T) {
	if got := Permute(nil, []byte("seed")); len(got) != 0 {
		t.Errorf("Permute(nil) = %v, want empty", got)
	}
	if got := Unpermute([]byte{}, []byte("seed")); len(got) != 0 {
		t.Errorf("Unpermute(empty) = %v, want empty", got)
	}
}

func TestPermuteIsDeterministic(t *testing.T) {
	data := make([]byte, 2048)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}

	seed := []byte("seed-a")
	if !bytes.Equal(Permute(data, seed), Permute(data, seed)) {
		t.Error("same seed produced different permutations")
	}
	if bytes.Equal(Permute(data, seed), Permute(data, []byte("seed-b"))) {
		t.Error("different seeds produced identical permutations")
	}
}

func TestPermuteActuallyMovesBits(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}

	if bytes.Equal(Permute(data, []byte("seed")), data) {
		t.Error("permutation left the input unchanged")
	}
}

// The forward sequence is not an involution: overlapping swaps do not
// commute, so the reverse transform must replay them in reverse order.
func TestPermuteForwardTwiceIsNotIdentity(t *testing.T) {
	data := make([]byte, 64)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}

	seed := []byte("overlap-seed")
	twice := Permute(Permute(data, seed), seed)
	if bytes.Equal(twice, data) {
		t.Error("applying the forward permutation twice restored the input; reverse ordering is load-bearing")
	}
}

func TestSwapSequenceBounds(t *testing.T) {
	tests := []struct {
		bitLen int
		want   int
	}{
		{8, 4},
		{100, 50},
		{2000, 1000},
		{8 * 1024 * 1024, 1000}, // cap applies regardless of size
	}

	for _, tt := range tests {
		swaps := swapSequence([]byte("seed"), tt.bitLen)
		if len(swaps) != tt.want {
			t.Errorf("bitLen %d: %d swaps, want %d", tt.bitLen, len(swaps), tt.want)
		}
		for _, sw := range swaps {
			if sw[0] == sw[1] {
				t.Errorf("bitLen %d: self-swap %v survived", tt.bitLen, sw)
			}
			if sw[0] < 0 || sw[0] >= tt.bitLen || sw[1] < 0 || sw[1] >= tt.bitLen {
				t.Errorf("bitLen %d: swap %v out of range", tt.bitLen, sw)
			}
		}
	}
}
