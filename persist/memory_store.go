package persist

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps all records in process memory. Intended for tests
// and throwaway sandboxes; nothing survives process exit.
type MemoryStore struct {
	mu        sync.RWMutex
	manifests map[string]*VersionedData
	chunks    map[string]map[int][]byte
	requests  map[string]*VersionedData
	users     *VersionedData
	tierKeys  *VersionedData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		manifests: make(map[string]*VersionedData),
		chunks:    make(map[string]map[int][]byte),
		requests:  make(map[string]*VersionedData),
	}
}

func (m *MemoryStore) SaveManifest(artifactID string, data []byte, expectedVersion string) (string, error) {
	if err := validateRecordID(artifactID); err != nil {
		return "", fmt.Errorf("invalid artifact ID: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return saveInMap(m.manifests, artifactID, data, expectedVersion, "SaveManifest")
}

func (m *MemoryStore) LoadManifest(artifactID string) (*VersionedData, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return loadFromMap(m.manifests, artifactID)
}

func (m *MemoryStore) ManifestExists(artifactID string) (bool, error) {
	if err := validateRecordID(artifactID); err != nil {
		return false, fmt.Errorf("invalid artifact ID: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.manifests[artifactID]
	return ok, nil
}

func (m *MemoryStore) ListManifests() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.manifests), nil
}

func (m *MemoryStore) SaveChunk(artifactID string, offset int, data []byte) error {
	if err := validateRecordID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks[artifactID] == nil {
		m.chunks[artifactID] = make(map[int][]byte)
	}
	m.chunks[artifactID][offset] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) LoadChunk(artifactID string, offset int) ([]byte, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.chunks[artifactID][offset]
	if !ok {
		return nil, fmt.Errorf("chunk %s/%d: %w", artifactID, offset, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) ListChunkOffsets(artifactID string) ([]int, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var offsets []int
	for offset := range m.chunks[artifactID] {
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)
	return offsets, nil
}

func (m *MemoryStore) DeleteChunks(artifactID string) error {
	if err := validateRecordID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, artifactID)
	return nil
}

func (m *MemoryStore) SaveUsers(data []byte, expectedVersion string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, err := saveSingleton(m.users, data, expectedVersion, "SaveUsers")
	if err != nil {
		return "", err
	}
	m.users = record
	return record.Version, nil
}

func (m *MemoryStore) LoadUsers() (*VersionedData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return loadSingleton(m.users, "users")
}

func (m *MemoryStore) SaveTierKeys(data []byte, expectedVersion string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, err := saveSingleton(m.tierKeys, data, expectedVersion, "SaveTierKeys")
	if err != nil {
		return "", err
	}
	m.tierKeys = record
	return record.Version, nil
}

func (m *MemoryStore) LoadTierKeys() (*VersionedData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return loadSingleton(m.tierKeys, "tier_keys")
}

func (m *MemoryStore) TierKeysExist() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tierKeys != nil, nil
}

func (m *MemoryStore) SaveRequest(requestID string, data []byte, expectedVersion string) (string, error) {
	if err := validateRecordID(requestID); err != nil {
		return "", fmt.Errorf("invalid request ID: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return saveInMap(m.requests, requestID, data, expectedVersion, "SaveRequest")
}

func (m *MemoryStore) LoadRequest(requestID string) (*VersionedData, error) {
	if err := validateRecordID(requestID); err != nil {
		return nil, fmt.Errorf("invalid request ID: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return loadFromMap(m.requests, requestID)
}

func (m *MemoryStore) ListRequests() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.requests), nil
}

func (m *MemoryStore) Ping() error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetType() string { return string(StoreTypeMemory) }

func saveInMap(records map[string]*VersionedData, id string, data []byte, expectedVersion, operation string) (string, error) {
	if data == nil {
		return "", fmt.Errorf("%s: data cannot be nil", operation)
	}
	current := ""
	if existing, ok := records[id]; ok {
		current = existing.Version
	}
	if expectedVersion != "" && current != expectedVersion {
		return "", ConcurrencyError{
			ExpectedVersion: expectedVersion,
			ActualVersion:   current,
			Operation:       operation,
		}
	}
	record := &VersionedData{
		Data:      append([]byte(nil), data...),
		Version:   recordVersion(data),
		Timestamp: time.Now().UTC(),
	}
	records[id] = record
	return record.Version, nil
}

func loadFromMap(records map[string]*VersionedData, id string) (*VersionedData, error) {
	record, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, os.ErrNotExist)
	}
	return &VersionedData{
		Data:      append([]byte(nil), record.Data...),
		Version:   record.Version,
		Timestamp: record.Timestamp,
	}, nil
}

func saveSingleton(existing *VersionedData, data []byte, expectedVersion, operation string) (*VersionedData, error) {
	if data == nil {
		return nil, fmt.Errorf("%s: data cannot be nil", operation)
	}
	current := ""
	if existing != nil {
		current = existing.Version
	}
	if expectedVersion != "" && current != expectedVersion {
		return nil, ConcurrencyError{
			ExpectedVersion: expectedVersion,
			ActualVersion:   current,
			Operation:       operation,
		}
	}
	return &VersionedData{
		Data:      append([]byte(nil), data...),
		Version:   recordVersion(data),
		Timestamp: time.Now().UTC(),
	}, nil
}

func loadSingleton(record *VersionedData, name string) (*VersionedData, error) {
	if record == nil {
		return nil, fmt.Errorf("record %s: %w", name, os.ErrNotExist)
	}
	return &VersionedData{
		Data:      append([]byte(nil), record.Data...),
		Version:   record.Version,
		Timestamp: record.Timestamp,
	}, nil
}

func sortedKeys(records map[string]*VersionedData) []string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
