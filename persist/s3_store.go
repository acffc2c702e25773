package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	ctxTimeout = 10 * time.Second
)

// S3Store implements the Store interface against an S3-compatible
// object store (MinIO). Object layout within the bucket:
//
//	[keyPrefix/]manifests/<artifact_id>.json
//	[keyPrefix/]chunks/<artifact_id>/<offset>.bin
//	[keyPrefix/]requests/<request_id>.json
//	[keyPrefix/]keys/users.json
//	[keyPrefix/]keys/tier_keys.json
//
// Record versions are the objects' ETags; conditional writes use
// If-Match so concurrent writers fail with a ConcurrencyError instead
// of silently overwriting each other.
type S3Store struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
}

// S3Config contains the configuration required to connect to S3 (MinIO).
type S3Config struct {
	Endpoint        string // The endpoint for the S3 service.
	AccessKeyID     string // The Access Key ID for accessing the S3 service.
	SecretAccessKey string // The Secret Access Key for accessing the S3 service.
	Bucket          string // The S3 bucket to use.
	KeyPrefix       string // The prefix for keys stored in the S3 bucket.
	UseSSL          bool   // Whether to use SSL for the connection.
	Region          string // The region of the S3 bucket.
}

// NewS3Store connects to the configured S3 endpoint and ensures the
// bucket exists.
func NewS3Store(config S3Config) (*S3Store, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &S3Store{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  config.KeyPrefix,
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err = store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return store, nil
}

// NewS3StoreFromConfig initializes a new S3Store instance from the
// given StoreConfig.
func NewS3StoreFromConfig(config StoreConfig) (*S3Store, error) {
	if config.Type != StoreTypeS3 {
		return nil, fmt.Errorf("invalid store type for MinIO: %s", config.Type)
	}

	configBytes, err := json.Marshal(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	var s3Config S3Config
	if err = json.Unmarshal(configBytes, &s3Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal S3 config: %w", err)
	}

	return NewS3Store(s3Config)
}

// Manifests

func (s3s *S3Store) SaveManifest(artifactID string, data []byte, expectedVersion string) (string, error) {
	if err := validateRecordID(artifactID); err != nil {
		return "", fmt.Errorf("invalid artifact ID: %w", err)
	}
	return s3s.saveVersioned(s3s.buildPath("manifests", artifactID+".json"), data, expectedVersion, "SaveManifest")
}

func (s3s *S3Store) LoadManifest(artifactID string) (*VersionedData, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}
	return s3s.loadVersioned(s3s.buildPath("manifests", artifactID+".json"))
}

func (s3s *S3Store) ManifestExists(artifactID string) (bool, error) {
	if err := validateRecordID(artifactID); err != nil {
		return false, fmt.Errorf("invalid artifact ID: %w", err)
	}
	return s3s.objectExists(s3s.buildPath("manifests", artifactID+".json"))
}

func (s3s *S3Store) ListManifests() ([]string, error) {
	return s3s.listJSONObjects(s3s.buildPath("manifests") + "/")
}

// Chunks

func (s3s *S3Store) SaveChunk(artifactID string, offset int, data []byte) error {
	if err := validateRecordID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}

	objectName := s3s.chunkObjectName(artifactID, offset)
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s3s.client.PutObject(ctx, s3s.bucketName, objectName,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
	if err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}
	return nil
}

func (s3s *S3Store) LoadChunk(artifactID string, offset int) ([]byte, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}

	objectName := s3s.chunkObjectName(artifactID, offset)
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	object, err := s3s.client.GetObject(ctx, s3s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if s3s.isNotFoundError(err) {
			return nil, fmt.Errorf("chunk %s/%d: %w", artifactID, offset, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read chunk: %w", err)
	}
	return data, nil
}

func (s3s *S3Store) ListChunkOffsets(artifactID string) ([]int, error) {
	if err := validateRecordID(artifactID); err != nil {
		return nil, fmt.Errorf("invalid artifact ID: %w", err)
	}

	prefix := s3s.buildPath("chunks", artifactID) + "/"
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	objectCh := s3s.client.ListObjects(ctx, s3s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var offsets []int
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list chunks: %w", object.Err)
		}
		name := strings.TrimPrefix(object.Key, prefix)
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

func (s3s *S3Store) DeleteChunks(artifactID string) error {
	if err := validateRecordID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}

	prefix := s3s.buildPath("chunks", artifactID) + "/"
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	objectCh := s3s.client.ListObjects(ctx, s3s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("failed to list chunks for deletion: %w", object.Err)
		}
		err := s3s.client.RemoveObject(ctx, s3s.bucketName, object.Key, minio.RemoveObjectOptions{})
		if err != nil {
			// Don't fail if the object was already deleted
			if minio.ToErrorResponse(err).Code != "NoSuchKey" {
				return fmt.Errorf("failed to delete chunk %s: %w", object.Key, err)
			}
		}
	}
	return nil
}

// Users and tier keys

func (s3s *S3Store) SaveUsers(data []byte, expectedVersion string) (string, error) {
	return s3s.saveVersioned(s3s.buildPath("keys", "users.json"), data, expectedVersion, "SaveUsers")
}

func (s3s *S3Store) LoadUsers() (*VersionedData, error) {
	return s3s.loadVersioned(s3s.buildPath("keys", "users.json"))
}

func (s3s *S3Store) SaveTierKeys(data []byte, expectedVersion string) (string, error) {
	return s3s.saveVersioned(s3s.buildPath("keys", "tier_keys.json"), data, expectedVersion, "SaveTierKeys")
}

func (s3s *S3Store) LoadTierKeys() (*VersionedData, error) {
	return s3s.loadVersioned(s3s.buildPath("keys", "tier_keys.json"))
}

func (s3s *S3Store) TierKeysExist() (bool, error) {
	return s3s.objectExists(s3s.buildPath("keys", "tier_keys.json"))
}

// Requests

func (s3s *S3Store) SaveRequest(requestID string, data []byte, expectedVersion string) (string, error) {
	if err := validateRecordID(requestID); err != nil {
		return "", fmt.Errorf("invalid request ID: %w", err)
	}
	return s3s.saveVersioned(s3s.buildPath("requests", requestID+".json"), data, expectedVersion, "SaveRequest")
}

func (s3s *S3Store) LoadRequest(requestID string) (*VersionedData, error) {
	if err := validateRecordID(requestID); err != nil {
		return nil, fmt.Errorf("invalid request ID: %w", err)
	}
	return s3s.loadVersioned(s3s.buildPath("requests", requestID+".json"))
}

func (s3s *S3Store) ListRequests() ([]string, error) {
	return s3s.listJSONObjects(s3s.buildPath("requests") + "/")
}

// Health and utilities

func (s3s *S3Store) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to ping S3: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s3s.bucketName)
	}
	return nil
}

func (s3s *S3Store) Close() error { return nil }

func (s3s *S3Store) GetType() string { return string(StoreTypeS3) }

// Helper methods

func (s3s *S3Store) saveVersioned(objectName string, data []byte, expectedVersion, operation string) (string, error) {
	if data == nil {
		return "", fmt.Errorf("%s: data cannot be nil", operation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	putOptions := minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"Created-At": time.Now().UTC().Format(time.RFC3339),
		},
	}

	if expectedVersion != "" {
		currentVersion, err := s3s.getObjectVersion(ctx, objectName)
		if err != nil {
			return "", fmt.Errorf("failed to check current version: %w", err)
		}
		if currentVersion != expectedVersion {
			return "", ConcurrencyError{
				ExpectedVersion: expectedVersion,
				ActualVersion:   currentVersion,
				Operation:       operation,
			}
		}
		// If-Match makes the update atomic on backends that support it
		putOptions.SetMatchETag(expectedVersion)
	}

	uploadInfo, err := s3s.client.PutObject(ctx, s3s.bucketName, objectName,
		bytes.NewReader(data), int64(len(data)), putOptions)
	if err != nil {
		if s3s.isPreconditionFailedError(err) {
			currentVersion, _ := s3s.getObjectVersion(ctx, objectName)
			return "", ConcurrencyError{
				ExpectedVersion: expectedVersion,
				ActualVersion:   currentVersion,
				Operation:       operation,
			}
		}
		return "", fmt.Errorf("%s: %w", operation, err)
	}

	return s3s.cleanETag(uploadInfo.ETag), nil
}

func (s3s *S3Store) loadVersioned(objectName string) (*VersionedData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	object, err := s3s.client.GetObject(ctx, s3s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if s3s.isNotFoundError(err) {
			return nil, fmt.Errorf("record %s: %w", objectName, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	objectInfo, err := object.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get record info: %w", err)
	}

	// Parse timestamp from metadata, fallback to LastModified
	var timestamp time.Time
	if createdAt, exists := objectInfo.UserMetadata["Created-At"]; exists {
		if parsedTime, err := time.Parse(time.RFC3339, createdAt); err == nil {
			timestamp = parsedTime
		}
	}
	if timestamp.IsZero() {
		timestamp = objectInfo.LastModified
	}

	return &VersionedData{
		Data:      data,
		Version:   s3s.cleanETag(objectInfo.ETag),
		Timestamp: timestamp,
	}, nil
}

func (s3s *S3Store) objectExists(objectName string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s3s.client.StatObject(ctx, s3s.bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

func (s3s *S3Store) listJSONObjects(prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	objectCh := s3s.client.ListObjects(ctx, s3s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var ids []string
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		name := strings.TrimPrefix(object.Key, prefix)
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, "/") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s3s *S3Store) chunkObjectName(artifactID string, offset int) string {
	return s3s.buildPath("chunks", artifactID, strconv.Itoa(offset)+".bin")
}

func (s3s *S3Store) buildPath(components ...string) string {
	var parts []string
	if s3s.keyPrefix != "" {
		cleanPrefix := strings.Trim(s3s.keyPrefix, "/")
		if cleanPrefix != "" {
			parts = append(parts, cleanPrefix)
		}
	}
	parts = append(parts, components...)
	return strings.Join(parts, "/")
}

func (s3s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err = s3s.client.MakeBucket(ctx, s3s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s3s *S3Store) getObjectVersion(ctx context.Context, objectName string) (string, error) {
	objInfo, err := s3s.client.StatObject(ctx, s3s.bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", nil // Object doesn't exist, version is empty
		}
		return "", err
	}
	return s3s.cleanETag(objInfo.ETag), nil
}

func (s3s *S3Store) cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

func (s3s *S3Store) isPreconditionFailedError(err error) bool {
	return minio.ToErrorResponse(err).Code == "PreconditionFailed"
}

func (s3s *S3Store) isNotFoundError(err error) bool {
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
	}
	return false
}
