package suraksh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// newArtifactID returns a 32-character hex identifier from 16 random
// bytes.
func newArtifactID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate artifact ID: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// hashBytes returns the sha256 hex digest of data.
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func chunkInfo(offset int) []byte {
	return []byte(fmt.Sprintf("chunk-%d", offset))
}
