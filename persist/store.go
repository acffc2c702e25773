package persist

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// VersionedData represents a stored record with its version information.
type VersionedData struct {
	Data      []byte
	Version   string // ETag, content hash, or counter
	Timestamp time.Time
}

// Store defines the keyed-record persistence used by the vault. All
// record data handed to a Store is already encrypted (or intrinsically
// public metadata); stores never see key material or plaintext.
//
// Save operations take an expectedVersion for optimistic concurrency:
// an empty expectedVersion means unconditional write, otherwise the
// write fails with ConcurrencyError when the stored version differs.
// Loads of absent records return an error satisfying
// errors.Is(err, os.ErrNotExist).
type Store interface {
	// Manifests
	SaveManifest(artifactID string, data []byte, expectedVersion string) (newVersion string, err error)
	LoadManifest(artifactID string) (*VersionedData, error)
	ManifestExists(artifactID string) (bool, error)
	ListManifests() ([]string, error)

	// Encrypted chunks, addressed by (artifact id, byte offset)
	SaveChunk(artifactID string, offset int, data []byte) error
	LoadChunk(artifactID string, offset int) ([]byte, error)
	ListChunkOffsets(artifactID string) ([]int, error)
	// DeleteChunks removes all chunks of an artifact. Used to collect
	// orphans when a manifest write fails after chunks were persisted.
	DeleteChunks(artifactID string) error

	// User records (single keyed record set)
	SaveUsers(data []byte, expectedVersion string) (newVersion string, err error)
	LoadUsers() (*VersionedData, error)

	// Clearance tier keys (single record, mock HSM)
	SaveTierKeys(data []byte, expectedVersion string) (newVersion string, err error)
	LoadTierKeys() (*VersionedData, error)
	TierKeysExist() (bool, error)

	// Access requests
	SaveRequest(requestID string, data []byte, expectedVersion string) (newVersion string, err error)
	LoadRequest(requestID string) (*VersionedData, error)
	ListRequests() ([]string, error)

	// Health and utilities
	Ping() error
	Close() error
	GetType() string
}

// StoreType represents the supported storage backends.
type StoreType string

const (
	StoreTypeFileSystem StoreType = "file"
	StoreTypeS3         StoreType = "s3"
	StoreTypeBadger     StoreType = "badger"
	StoreTypeMemory     StoreType = "memory"
)

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	Type   StoreType              `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// ConcurrencyError reports an optimistic-concurrency version conflict.
type ConcurrencyError struct {
	ExpectedVersion string
	ActualVersion   string
	Operation       string
}

func (e ConcurrencyError) Error() string {
	return fmt.Sprintf("version conflict in %s: expected version %s, but found %s",
		e.Operation, e.ExpectedVersion, e.ActualVersion)
}

func (e ConcurrencyError) IsConcurrencyError() bool {
	return true
}

// recordVersion derives a record's version token from its content.
func recordVersion(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
