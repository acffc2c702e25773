package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	FilePermissions os.FileMode = 0600
	DirPermissions  os.FileMode = 0700
)

// FileSystemStore implements Store on the local filesystem with
// optimistic concurrency control. Layout under basePath:
//
//	manifests/<artifact_id>.json
//	chunks/<artifact_id>/<offset>.bin
//	requests/<request_id>.json
//	keys/users.json
//	keys/tier_keys.json
type FileSystemStore struct {
	basePath     string
	manifestsDir string
	chunksDir    string
	requestsDir  string
	usersFile    string
	tierKeysFile string
}

// NewFileSystemStore initializes the directory structure and returns a
// ready store.
func NewFileSystemStore(basePath string) (*FileSystemStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path is required")
	}

	fs := &FileSystemStore{
		basePath:     basePath,
		manifestsDir: filepath.Join(basePath, "manifests"),
		chunksDir:    filepath.Join(basePath, "chunks"),
		requestsDir:  filepath.Join(basePath, "requests"),
		usersFile:    filepath.Join(basePath, "keys", "users.json"),
		tierKeysFile: filepath.Join(basePath, "keys", "tier_keys.json"),
	}

	dirs := []string{
		fs.manifestsDir,
		fs.chunksDir,
		fs.requestsDir,
		filepath.Join(basePath, "keys"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return fs, nil
}

// NewFileSystemStoreFromConfig creates a FileSystemStore from StoreConfig.
func NewFileSystemStoreFromConfig(config StoreConfig) (*FileSystemStore, error) {
	basePath, ok := config.Config["base_path"].(string)
	if !ok {
		return nil, fmt.Errorf("base_path is required for filesystem store")
	}
	return NewFileSystemStore(basePath)
}

// Manifests

func (fs *FileSystemStore) SaveManifest(artifactID string, data []byte, expectedVersion string) (string, error) {
	if err := validateRecordID(artifactID); err != nil {
		return "", fmt.Errorf("invalid artifact ID: %w", err)
	}
	return fs.saveVersioned(fs.manifestPath(artifactID), data, expectedVersion, "SaveManifest")
}

func (fs *FileSystemStore) LoadManifest(artifactID string) (*VersionedData, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}
	return fs.loadVersioned(fs.manifestPath(artifactID))
}

func (fs *FileSystemStore) ManifestExists(artifactID string) (bool, error) {
	if err := validateRecordID(artifactID); err != nil {
		return false, fmt.Errorf("invalid artifact ID: %w", err)
	}
	return fileExists(fs.manifestPath(artifactID))
}

func (fs *FileSystemStore) ListManifests() ([]string, error) {
	return listJSONRecords(fs.manifestsDir)
}

// Chunks

func (fs *FileSystemStore) SaveChunk(artifactID string, offset int, data []byte) error {
	if err := validateRecordID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}

	dir := filepath.Join(fs.chunksDir, artifactID)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}
	return writeSecureFile(filepath.Join(dir, chunkName(offset)), data)
}

func (fs *FileSystemStore) LoadChunk(artifactID string, offset int) ([]byte, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(fs.chunksDir, artifactID, chunkName(offset)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("chunk %s/%d: %w", artifactID, offset, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to load chunk: %w", err)
	}
	return data, nil
}

func (fs *FileSystemStore) ListChunkOffsets(artifactID string) ([]int, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}

	entries, err := os.ReadDir(filepath.Join(fs.chunksDir, artifactID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	var offsets []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".bin") {
			continue
		}
		offset, err := strconv.Atoi(strings.TrimSuffix(name, ".bin"))
		if err != nil {
			continue
		}
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)
	return offsets, nil
}

func (fs *FileSystemStore) DeleteChunks(artifactID string) error {
	if err := validateRecordID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(fs.chunksDir, artifactID)); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Users and tier keys

func (fs *FileSystemStore) SaveUsers(data []byte, expectedVersion string) (string, error) {
	return fs.saveVersioned(fs.usersFile, data, expectedVersion, "SaveUsers")
}

func (fs *FileSystemStore) LoadUsers() (*VersionedData, error) {
	return fs.loadVersioned(fs.usersFile)
}

func (fs *FileSystemStore) SaveTierKeys(data []byte, expectedVersion string) (string, error) {
	return fs.saveVersioned(fs.tierKeysFile, data, expectedVersion, "SaveTierKeys")
}

func (fs *FileSystemStore) LoadTierKeys() (*VersionedData, error) {
	return fs.loadVersioned(fs.tierKeysFile)
}

func (fs *FileSystemStore) TierKeysExist() (bool, error) {
	return fileExists(fs.tierKeysFile)
}

// Requests

func (fs *FileSystemStore) SaveRequest(requestID string, data []byte, expectedVersion string) (string, error) {
	if err := validateRecordID(requestID); err != nil {
		return "", fmt.Errorf("invalid request ID: %w", err)
	}
	return fs.saveVersioned(fs.requestPath(requestID), data, expectedVersion, "SaveRequest")
}

func (fs *FileSystemStore) LoadRequest(requestID string) (*VersionedData, error) {
	if err := validateRecordID(requestID); err != nil {
		return nil, fmt.Errorf("invalid request ID: %w", err)
	}
	return fs.loadVersioned(fs.requestPath(requestID))
}

func (fs *FileSystemStore) ListRequests() ([]string, error) {
	return listJSONRecords(fs.requestsDir)
}

// Health and utilities

func (fs *FileSystemStore) Ping() error {
	if _, err := os.Stat(fs.basePath); err != nil {
		return fmt.Errorf("storage path unavailable: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) Close() error { return nil }

func (fs *FileSystemStore) GetType() string { return string(StoreTypeFileSystem) }

// internals

func (fs *FileSystemStore) manifestPath(artifactID string) string {
	return filepath.Join(fs.manifestsDir, artifactID+".json")
}

func (fs *FileSystemStore) requestPath(requestID string) string {
	return filepath.Join(fs.requestsDir, requestID+".json")
}

func (fs *FileSystemStore) saveVersioned(path string, data []byte, expectedVersion, operation string) (string, error) {
	if data == nil {
		return "", fmt.Errorf("%s: data cannot be nil", operation)
	}

	if expectedVersion != "" {
		current, err := fs.fileVersion(path)
		if err != nil {
			return "", fmt.Errorf("failed to check current version: %w", err)
		}
		if current != expectedVersion {
			return "", ConcurrencyError{
				ExpectedVersion: expectedVersion,
				ActualVersion:   current,
				Operation:       operation,
			}
		}
	}

	if err := writeSecureFile(path, data); err != nil {
		return "", err
	}
	return recordVersion(data), nil
}

func (fs *FileSystemStore) loadVersioned(path string) (*VersionedData, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("record %s: %w", filepath.Base(path), os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to stat record: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	return &VersionedData{
		Data:      data,
		Version:   recordVersion(data),
		Timestamp: info.ModTime(),
	}, nil
}

func (fs *FileSystemStore) fileVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return recordVersion(data), nil
}

// writeSecureFile writes via a temp file and rename so readers never
// observe a partial record.
func writeSecureFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err = tmp.Chmod(FilePermissions); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit record: %w", err)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func listJSONRecords(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func chunkName(offset int) string {
	return strconv.Itoa(offset) + ".bin"
}
