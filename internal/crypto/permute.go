package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// maxSwaps bounds the swap sequence length regardless of input size.
// The cap keeps the transform cheap but limits obfuscation strength on
// very large inputs.
const maxSwaps = 1000

// Permute applies a deterministic, seed-driven, reversible bit-level
// permutation to data. The same seed always produces the same swap
// sequence, so the transform is a pure function of (data, seed); the
// sequence itself is never persisted.
func Permute(data, seed []byte) []byte {
	if len(data) == 0 {
		return []byte{}
	}

	out := make([]byte, len(data))
	copy(out, data)

	for _, sw := range swapSequence(seed, len(data)*8) {
		swapBits(out, sw[0], sw[1])
	}
	return out
}

// Unpermute reverses Permute for the same seed. The swap sequence must
// be replayed in reverse order: each swap is self-inverse, but the
// composition of overlapping position swaps is not commutative, so
// applying the forward sequence twice does not restore the original.
func Unpermute(data, seed []byte) []byte {
	if len(data) == 0 {
		return []byte{}
	}

	out := make([]byte, len(data))
	copy(out, data)

	swaps := swapSequence(seed, len(data)*8)
	for i := len(swaps) - 1; i >= 0; i-- {
		swapBits(out, swaps[i][0], swaps[i][1])
	}
	return out
}

// swapSequence expands seed into a bounded sequence of bit-index pairs.
// The seed is hashed with BLAKE2b-512 into a running cursor; each
// iteration rehashes the cursor together with a big-endian counter and
// slices 2-byte big-endian index pairs modulo bitLen, discarding
// self-swaps. The exact scheme is load-bearing: independent
// implementations must interoperate on persisted artifacts.
func swapSequence(seed []byte, bitLen int) [][2]int {
	needed := bitLen / 2
	if needed > maxSwaps {
		needed = maxSwaps
	}

	swaps := make([][2]int, 0, needed)
	cursor := blake2b.Sum512(seed)

	buf := make([]byte, blake2b.Size+4)
	for i := uint32(0); len(swaps) < needed; i++ {
		copy(buf, cursor[:])
		binary.BigEndian.PutUint32(buf[blake2b.Size:], i)
		cursor = blake2b.Sum512(buf)

		for j := 0; j+4 <= len(cursor); j += 4 {
			a := int(binary.BigEndian.Uint16(cursor[j:j+2])) % bitLen
			b := int(binary.BigEndian.Uint16(cursor[j+2:j+4])) % bitLen
			if a == b {
				continue
			}
			swaps = append(swaps, [2]int{a, b})
			if len(swaps) >= needed {
				break
			}
		}
	}
	return swaps
}

// Bits are addressed big-endian within each byte: index 0 is the most
// significant bit of byte 0.

func getBit(data []byte, idx int) byte {
	return (data[idx/8] >> (7 - uint(idx%8))) & 1
}

func setBit(data []byte, idx int, bit byte) {
	mask := byte(1) << (7 - uint(idx%8))
	if bit == 1 {
		data[idx/8] |= mask
	} else {
		data[idx/8] &^= mask
	}
}

func swapBits(data []byte, a, b int) {
	ba, bb := getBit(data, a), getBit(data, b)
	setBit(data, a, bb)
	setBit(data, b, ba)
}
