package persist

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewStore creates a storage backend from the given configuration.
func NewStore(config StoreConfig, log *logrus.Logger) (Store, error) {
	switch config.Type {
	case StoreTypeFileSystem:
		return NewFileSystemStoreFromConfig(config)
	case StoreTypeS3:
		return NewS3StoreFromConfig(config)
	case StoreTypeBadger:
		return NewBadgerStoreFromConfig(config, log)
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// validateRecordID rejects identifiers that could escape the record
// namespace when used as a path or key segment.
func validateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record ID cannot be empty")
	}
	if len(id) > 128 {
		return fmt.Errorf("record ID too long (max 128 characters)")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("record ID contains invalid characters")
	}
	for _, r := range id {
		if !isRecordIDChar(r) {
			return fmt.Errorf("record ID contains invalid character %q", r)
		}
	}
	return nil
}

func isRecordIDChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.':
		return true
	}
	return false
}
