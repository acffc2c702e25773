package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const (
	badgerManifestPrefix = "manifest:"
	badgerChunkPrefix    = "chunk:"
	badgerRequestPrefix  = "request:"
	badgerUsersKey       = "users"
	badgerTierKeysKey    = "tier_keys"
)

// BadgerStore implements Store on an embedded Badger key-value database.
// Version checks run inside a single Update transaction, so concurrent
// writers serialize on the database rather than on file mtimes.
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Logger
}

// NewBadgerStore opens (or creates) a Badger database at dbPath.
func NewBadgerStore(dbPath string, log *logrus.Logger) (*BadgerStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if log == nil {
		log = logrus.New()
	}

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	log.WithField("path", dbPath).Debug("badger store opened")
	return &BadgerStore{db: db, log: log}, nil
}

// NewBadgerStoreFromConfig creates a BadgerStore from StoreConfig.
func NewBadgerStoreFromConfig(config StoreConfig, log *logrus.Logger) (*BadgerStore, error) {
	dbPath, ok := config.Config["db_path"].(string)
	if !ok {
		return nil, fmt.Errorf("db_path is required for badger store")
	}
	return NewBadgerStore(dbPath, log)
}

func (b *BadgerStore) SaveManifest(artifactID string, data []byte, expectedVersion string) (string, error) {
	if err := validateRecordID(artifactID); err != nil {
		return "", fmt.Errorf("invalid artifact ID: %w", err)
	}
	return b.saveVersioned(badgerManifestPrefix+artifactID, data, expectedVersion, "SaveManifest")
}

func (b *BadgerStore) LoadManifest(artifactID string) (*VersionedData, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}
	return b.loadVersioned(badgerManifestPrefix + artifactID)
}

func (b *BadgerStore) ManifestExists(artifactID string) (bool, error) {
	if err := validateRecordID(artifactID); err != nil {
		return false, fmt.Errorf("invalid artifact ID: %w", err)
	}
	return b.keyExists(badgerManifestPrefix + artifactID)
}

func (b *BadgerStore) ListManifests() ([]string, error) {
	return b.listKeys(badgerManifestPrefix)
}

func (b *BadgerStore) SaveChunk(artifactID string, offset int, data []byte) error {
	if err := validateRecordID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}
	key := chunkKey(artifactID, offset)
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}
	return nil
}

func (b *BadgerStore) LoadChunk(artifactID string, offset int) ([]byte, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(artifactID, offset))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, fmt.Errorf("chunk %s/%d: %w", artifactID, offset, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to load chunk: %w", err)
	}
	return data, nil
}

func (b *BadgerStore) ListChunkOffsets(artifactID string) ([]int, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}
	prefix := []byte(badgerChunkPrefix + artifactID + ":")
	var offsets []int
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			raw := key[len(prefix):]
			if len(raw) != 8 {
				continue
			}
			offsets = append(offsets, int(binary.BigEndian.Uint64(raw)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	sort.Ints(offsets)
	return offsets, nil
}

func (b *BadgerStore) DeleteChunks(artifactID string) error {
	if err := validateRecordID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}
	prefix := []byte(badgerChunkPrefix + artifactID + ":")
	err := b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (b *BadgerStore) SaveUsers(data []byte, expectedVersion string) (string, error) {
	return b.saveVersioned(badgerUsersKey, data, expectedVersion, "SaveUsers")
}

func (b *BadgerStore) LoadUsers() (*VersionedData, error) {
	return b.loadVersioned(badgerUsersKey)
}

func (b *BadgerStore) SaveTierKeys(data []byte, expectedVersion string) (string, error) {
	return b.saveVersioned(badgerTierKeysKey, data, expectedVersion, "SaveTierKeys")
}

func (b *BadgerStore) LoadTierKeys() (*VersionedData, error) {
	return b.loadVersioned(badgerTierKeysKey)
}

func (b *BadgerStore) TierKeysExist() (bool, error) {
	return b.keyExists(badgerTierKeysKey)
}

func (b *BadgerStore) SaveRequest(requestID string, data []byte, expectedVersion string) (string, error) {
	if err := validateRecordID(requestID); err != nil {
		return "", fmt.Errorf("invalid request ID: %w", err)
	}
	return b.saveVersioned(badgerRequestPrefix+requestID, data, expectedVersion, "SaveRequest")
}

func (b *BadgerStore) LoadRequest(requestID string) (*VersionedData, error) {
	if err := validateRecordID(requestID); err != nil {
		return nil, fmt.Errorf("invalid request ID: %w", err)
	}
	return b.loadVersioned(badgerRequestPrefix + requestID)
}

func (b *BadgerStore) ListRequests() ([]string, error) {
	return b.listKeys(badgerRequestPrefix)
}

func (b *BadgerStore) Ping() error {
	if b.db.IsClosed() {
		return fmt.Errorf("badger database is closed")
	}
	return nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) GetType() string { return string(StoreTypeBadger) }

func (b *BadgerStore) saveVersioned(key string, data []byte, expectedVersion, operation string) (string, error) {
	if data == nil {
		return "", fmt.Errorf("%s: data cannot be nil", operation)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		current := ""
		item, err := txn.Get([]byte(key))
		switch err {
		case nil:
			existing, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			current = recordVersion(existing)
		case badger.ErrKeyNotFound:
			// new record
		default:
			return err
		}
		if expectedVersion != "" && current != expectedVersion {
			return ConcurrencyError{
				ExpectedVersion: expectedVersion,
				ActualVersion:   current,
				Operation:       operation,
			}
		}
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		if _, ok := err.(ConcurrencyError); ok {
			return "", err
		}
		return "", fmt.Errorf("%s: %w", operation, err)
	}
	return recordVersion(data), nil
}

func (b *BadgerStore) loadVersioned(key string) (*VersionedData, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, fmt.Errorf("record %s: %w", key, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return &VersionedData{
		Data:      data,
		Version:   recordVersion(data),
		Timestamp: time.Now().UTC(),
	}, nil
}

func (b *BadgerStore) keyExists(key string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	return true, nil
}

func (b *BadgerStore) listKeys(prefix string) ([]string, error) {
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func chunkKey(artifactID string, offset int) []byte {
	var buf bytes.Buffer
	buf.WriteString(badgerChunkPrefix)
	buf.WriteString(artifactID)
	buf.WriteByte(':')
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], uint64(offset))
	buf.Write(be[:])
	return buf.Bytes()
}
