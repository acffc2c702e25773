package suraksh

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/awnumar/memguard"
	"github.com/cloudflare/circl/dh/x25519"
	"github.com/sirupsen/logrus"

	"github.com/Ayush-3103-AI/Suraksh/internal/crypto"
	"github.com/Ayush-3103-AI/Suraksh/ledger"
	"github.com/Ayush-3103-AI/Suraksh/persist"
)

// HKDF info labels and AAD tags. These are part of the persisted data
// format; changing any of them orphans existing artifacts.
const (
	infoPermutationSeed = "permutation-seed"
	infoFileMaster      = "file-master"
	aadClearanceWrap    = "clearance-wrap"
)

// Vault is the clearance-stratified document store. Every artifact is
// chunked, encrypted under keys derived from a per-file FEK, and
// readable only through a clearance decision; every operation that
// touches an artifact is appended to the audit ledger.
//
// A Vault is safe for concurrent use. Record-level races are resolved
// by the store's optimistic versioning rather than a process-wide lock.
type Vault struct {
	store    persist.Store
	ledger   ledger.Ledger
	registry *KeyRegistry
	opts     Options
	log      *logrus.Logger
}

// NewWithStore assembles a vault on top of an initialized store and
// ledger. It pings the store and provisions tier keys and seed users
// when absent.
func NewWithStore(opts Options, store persist.Store, led ledger.Ledger) (*Vault, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	opts = opts.withDefaults()

	if err := store.Ping(); err != nil {
		return nil, fmt.Errorf("store ping failed: %w", ErrStorageUnavailable)
	}

	registry, err := NewKeyRegistry(store, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Vault{
		store:    store,
		ledger:   led,
		registry: registry,
		opts:     opts,
		log:      opts.Logger,
	}, nil
}

// Registry exposes the user roster and authentication.
func (v *Vault) Registry() *KeyRegistry {
	return v.registry
}

// Upload encrypts data at the given clearance tier and returns the new
// artifact ID. Plaintext is never persisted: the payload is permuted,
// chunked and encrypted before any byte reaches the store, and the
// manifest lands last so half-written artifacts stay unreachable.
func (v *Vault) Upload(userID, filename string, data []byte, clearance int) (string, error) {
	user, err := v.registry.User(userID)
	if err != nil {
		return "", err
	}
	if clearance < TierMin || clearance > TierMax {
		return "", fmt.Errorf("clearance %d outside storable tiers %d..%d: %w",
			clearance, TierMin, TierMax, ErrAccessDenied)
	}

	artifactID, err := newArtifactID()
	if err != nil {
		return "", err
	}

	fek, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate file key: %w", err)
	}
	defer memguard.WipeBytes(fek)

	wrappedFEK, fileHash, chunks, err := v.storeEncrypted(artifactID, fek, data, clearance)
	if err != nil {
		return "", err
	}

	manifest := Manifest{
		ID:               artifactID,
		Type:             ArtifactTypeFile,
		Uploader:         user.ID,
		Filename:         filename,
		OriginalFilename: filename,
		Clearance:        clearance,
		Chunks:           chunks,
		WrappedFEK:       wrappedFEK,
		FileHash:         fileHash,
		Timestamp:        time.Now().UTC(),
	}
	if err = v.saveManifest(&manifest); err != nil {
		// The chunks are unreachable without a manifest; reclaim them.
		if cleanupErr := v.store.DeleteChunks(artifactID); cleanupErr != nil {
			v.log.WithError(cleanupErr).WithField("artifact_id", artifactID).
				Warn("failed to reclaim orphaned chunks")
		}
		return "", err
	}

	v.audit(ledger.ActionUpload, map[string]interface{}{
		"artifact_id": artifactID,
		"user":        user.ID,
		"filename":    filename,
		"clearance":   clearance,
		"size":        len(data),
	})
	return artifactID, nil
}

// Retrieve authorizes the user against the artifact's tier, decrypts
// it and verifies its content hash before returning the plaintext.
// Denied callers learn nothing beyond the denial; no key material is
// touched until the clearance decision allows it.
func (v *Vault) Retrieve(userID, artifactID string) ([]byte, error) {
	user, err := v.registry.User(userID)
	if err != nil {
		return nil, err
	}
	manifest, err := v.loadManifest(artifactID)
	if err != nil {
		return nil, err
	}
	if manifest.Type != ArtifactTypeFile {
		return nil, fmt.Errorf("artifact %s is not a file: %w", artifactID, ErrNotFound)
	}

	decision := Validate(user, manifest.Clearance, manifest.ApprovedAccess)
	if !decision.Allowed {
		return nil, fmt.Errorf("user %s may not read artifact %s: %w",
			userID, artifactID, ErrAccessDenied)
	}

	plaintext, err := v.decryptArtifact(manifest)
	if err != nil {
		return nil, err
	}

	v.audit(ledger.ActionAccess, map[string]interface{}{
		"artifact_id": artifactID,
		"user":        user.ID,
		"reason":      decision.Reason,
	})
	return plaintext, nil
}

// Share re-encrypts an artifact for a receiver under a fresh FEK and a
// fresh artifact ID, recording lineage on the new manifest. The new
// FEK is additionally hybrid-wrapped to the receiver's exchange key so
// the grant survives a tier-key rotation. Compromise of the copy's key
// material reveals nothing about the source artifact.
func (v *Vault) Share(senderID, receiverID, artifactID string) (string, error) {
	sender, err := v.registry.User(senderID)
	if err != nil {
		return "", err
	}
	receiver, err := v.registry.User(receiverID)
	if err != nil {
		return "", err
	}
	manifest, err := v.loadManifest(artifactID)
	if err != nil {
		return "", err
	}
	if manifest.Type != ArtifactTypeFile {
		return "", fmt.Errorf("artifact %s is not a file: %w", artifactID, ErrNotFound)
	}

	// Both ends are authorized before any cryptographic work happens.
	if decision := Validate(sender, manifest.Clearance, manifest.ApprovedAccess); !decision.Allowed {
		return "", fmt.Errorf("sender %s may not read artifact %s: %w",
			senderID, artifactID, ErrAccessDenied)
	}
	if !receiver.IsSuperuser() && receiver.Clearance < manifest.Clearance {
		return "", fmt.Errorf("receiver %s clearance %d below artifact tier %d: %w",
			receiverID, receiver.Clearance, manifest.Clearance, ErrAccessDenied)
	}

	plaintext, err := v.decryptArtifact(manifest)
	if err != nil {
		return "", err
	}
	defer memguard.WipeBytes(plaintext)

	// Superuser receivers hold no tier key; the copy stays at the
	// artifact's own tier.
	targetTier := manifest.Clearance
	if !receiver.IsSuperuser() && receiver.Clearance < targetTier {
		targetTier = receiver.Clearance
	}

	newID, err := newArtifactID()
	if err != nil {
		return "", err
	}
	fek, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate file key: %w", err)
	}
	defer memguard.WipeBytes(fek)

	wrappedFEK, fileHash, chunks, err := v.storeEncrypted(newID, fek, plaintext, targetTier)
	if err != nil {
		return "", err
	}

	recipientFEK, err := v.hybridWrapForReceiver(sender, receiver, fek)
	if err != nil {
		return "", err
	}

	copyManifest := Manifest{
		ID:               newID,
		Type:             ArtifactTypeFile,
		Uploader:         receiver.ID,
		Filename:         manifest.Filename,
		OriginalFilename: manifest.OriginalFilename,
		Clearance:        targetTier,
		Chunks:           chunks,
		WrappedFEK:       wrappedFEK,
		RecipientFEK:     recipientFEK,
		FileHash:         fileHash,
		SharedFrom:       artifactID,
		SharedWith:       receiver.ID,
		Timestamp:        time.Now().UTC(),
	}
	if err = v.saveManifest(&copyManifest); err != nil {
		if cleanupErr := v.store.DeleteChunks(newID); cleanupErr != nil {
			v.log.WithError(cleanupErr).WithField("artifact_id", newID).
				Warn("failed to reclaim orphaned chunks")
		}
		return "", err
	}

	v.audit(ledger.ActionShare, map[string]interface{}{
		"artifact_id": artifactID,
		"new_id":      newID,
		"sender":      sender.ID,
		"receiver":    receiver.ID,
		"clearance":   targetTier,
	})
	return newID, nil
}

// ListArtifacts returns metadata for every stored artifact, file and
// CLSD alike. It never decrypts anything.
func (v *Vault) ListArtifacts() ([]ArtifactSummary, error) {
	ids, err := v.store.ListManifests()
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", ErrStorageUnavailable)
	}

	summaries := make([]ArtifactSummary, 0, len(ids))
	for _, id := range ids {
		manifest, err := v.loadManifest(id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ArtifactSummary{
			ID:         manifest.ID,
			Type:       manifest.Type,
			Filename:   manifest.Filename,
			Title:      manifest.Title,
			Uploader:   manifest.Uploader,
			Clearance:  manifest.Clearance,
			SharedFrom: manifest.SharedFrom,
			SharedWith: manifest.SharedWith,
			Timestamp:  manifest.Timestamp,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.Before(summaries[j].Timestamp)
	})
	return summaries, nil
}

// GetArtifactInfo returns an artifact's metadata without decryption.
func (v *Vault) GetArtifactInfo(artifactID string) (*ArtifactSummary, error) {
	manifest, err := v.loadManifest(artifactID)
	if err != nil {
		return nil, err
	}
	return &ArtifactSummary{
		ID:         manifest.ID,
		Type:       manifest.Type,
		Filename:   manifest.Filename,
		Title:      manifest.Title,
		Uploader:   manifest.Uploader,
		Clearance:  manifest.Clearance,
		SharedFrom: manifest.SharedFrom,
		SharedWith: manifest.SharedWith,
		Timestamp:  manifest.Timestamp,
	}, nil
}

// LedgerEntries returns the full audit chain, genesis first.
func (v *Vault) LedgerEntries() ([]ledger.Entry, error) {
	return v.ledger.Entries()
}

// VerifyLedger re-walks the audit chain and reports the first broken
// link, if any.
func (v *Vault) VerifyLedger() (bool, string) {
	return v.ledger.Verify()
}

// Close releases the underlying store and ledger.
func (v *Vault) Close() error {
	var errs []error
	if v.ledger != nil {
		if err := v.ledger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := v.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// storeEncrypted permutes, chunks and encrypts data under keys derived
// from fek, persists the chunks, and returns the tier-wrapped FEK, the
// plaintext hash and the chunk list.
func (v *Vault) storeEncrypted(artifactID string, fek, data []byte, clearance int) (string, string, []ChunkRef, error) {
	seed, err := crypto.DeriveKey(fek, nil, []byte(infoPermutationSeed), crypto.KeySize)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to derive permutation seed: %w", err)
	}
	defer memguard.WipeBytes(seed)

	master, err := crypto.DeriveKey(fek, nil, []byte(infoFileMaster), crypto.KeySize)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to derive file master key: %w", err)
	}
	defer memguard.WipeBytes(master)

	permuted := crypto.Permute(data, seed)
	defer memguard.WipeBytes(permuted)

	var chunks []ChunkRef
	for offset := 0; offset < len(permuted); offset += v.opts.ChunkSize {
		end := offset + v.opts.ChunkSize
		if end > len(permuted) {
			end = len(permuted)
		}

		chunkKey, err := crypto.DeriveKey(master, nil, chunkInfo(offset), crypto.KeySize)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to derive chunk key: %w", err)
		}
		sealed, err := crypto.Encrypt(chunkKey, permuted[offset:end], []byte(artifactID))
		memguard.WipeBytes(chunkKey)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to encrypt chunk %d: %w", offset, err)
		}

		if err = v.store.SaveChunk(artifactID, offset, sealed); err != nil {
			return "", "", nil, fmt.Errorf("failed to persist chunk %d: %w", offset, ErrStorageUnavailable)
		}
		chunks = append(chunks, ChunkRef{Offset: offset})
	}

	wrappedFEK, err := v.wrapFEK(fek, clearance)
	if err != nil {
		return "", "", nil, err
	}
	return wrappedFEK, hashBytes(data), chunks, nil
}

// decryptArtifact unwraps the FEK, decrypts every chunk in ascending
// offset order, reverses the permutation and verifies the content
// hash. Any failure aborts with IntegrityViolation; partial plaintext
// never escapes.
func (v *Vault) decryptArtifact(manifest *Manifest) ([]byte, error) {
	fek, err := v.unwrapFEK(manifest)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(fek)

	master, err := crypto.DeriveKey(fek, nil, []byte(infoFileMaster), crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive file master key: %w", err)
	}
	defer memguard.WipeBytes(master)

	offsets := make([]int, len(manifest.Chunks))
	for i, ref := range manifest.Chunks {
		offsets[i] = ref.Offset
	}
	sort.Ints(offsets)

	var permuted bytes.Buffer
	for _, offset := range offsets {
		sealed, err := v.store.LoadChunk(manifest.ID, offset)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("artifact %s chunk %d missing: %w",
					manifest.ID, offset, ErrIntegrityViolation)
			}
			return nil, fmt.Errorf("failed to load chunk %d: %w", offset, ErrStorageUnavailable)
		}

		chunkKey, err := crypto.DeriveKey(master, nil, chunkInfo(offset), crypto.KeySize)
		if err != nil {
			return nil, fmt.Errorf("failed to derive chunk key: %w", err)
		}
		plain, err := crypto.Decrypt(chunkKey, sealed, []byte(manifest.ID))
		memguard.WipeBytes(chunkKey)
		if err != nil {
			return nil, fmt.Errorf("artifact %s chunk %d failed authentication: %w",
				manifest.ID, offset, ErrIntegrityViolation)
		}
		permuted.Write(plain)
	}

	seed, err := crypto.DeriveKey(fek, nil, []byte(infoPermutationSeed), crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive permutation seed: %w", err)
	}
	defer memguard.WipeBytes(seed)

	plaintext := crypto.Unpermute(permuted.Bytes(), seed)
	if hashBytes(plaintext) != manifest.FileHash {
		memguard.WipeBytes(plaintext)
		return nil, fmt.Errorf("artifact %s content hash mismatch: %w",
			manifest.ID, ErrIntegrityViolation)
	}
	return plaintext, nil
}

// wrapFEK seals a file key under the clearance tier key.
func (v *Vault) wrapFEK(fek []byte, clearance int) (string, error) {
	enclave, err := v.registry.TierKey(clearance)
	if err != nil {
		return "", err
	}
	tierKey, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open tier %d key: %w", clearance, err)
	}
	defer tierKey.Destroy()

	wrapped, err := crypto.Encrypt(tierKey.Bytes(), fek, []byte(aadClearanceWrap))
	if err != nil {
		return "", fmt.Errorf("failed to wrap file key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

func (v *Vault) unwrapFEK(manifest *Manifest) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(manifest.WrappedFEK)
	if err != nil {
		return nil, fmt.Errorf("artifact %s has a malformed wrapped key: %w",
			manifest.ID, ErrIntegrityViolation)
	}

	enclave, err := v.registry.TierKey(manifest.Clearance)
	if err != nil {
		return nil, err
	}
	tierKey, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open tier %d key: %w", manifest.Clearance, err)
	}
	defer tierKey.Destroy()

	fek, err := crypto.Decrypt(tierKey.Bytes(), wrapped, []byte(aadClearanceWrap))
	if err != nil {
		return nil, fmt.Errorf("artifact %s key unwrap failed: %w",
			manifest.ID, ErrIntegrityViolation)
	}
	return fek, nil
}

func (v *Vault) hybridWrapForReceiver(sender, receiver *User, fek []byte) (string, error) {
	_, senderPriv, err := exchangeKeys(sender)
	if err != nil {
		return "", err
	}
	receiverPub, _, err := exchangeKeys(receiver)
	if err != nil {
		return "", err
	}

	wrapped, err := crypto.HybridWrap(x25519.Key(senderPriv), x25519.Key(receiverPub), fek, v.opts.Augmenter)
	if err != nil {
		return "", fmt.Errorf("failed to wrap file key for receiver: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

func (v *Vault) loadManifest(artifactID string) (*Manifest, error) {
	record, err := v.store.LoadManifest(artifactID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("artifact %s: %w", artifactID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load manifest: %w", ErrStorageUnavailable)
	}

	var manifest Manifest
	if err = json.Unmarshal(record.Data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", artifactID, err)
	}
	return &manifest, nil
}

func (v *Vault) saveManifest(manifest *Manifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if _, err = v.store.SaveManifest(manifest.ID, data, ""); err != nil {
		return fmt.Errorf("failed to persist manifest: %w", ErrStorageUnavailable)
	}
	return nil
}

// updateManifest applies mutate under optimistic concurrency, retrying
// with exponential backoff when a concurrent writer wins the race.
func (v *Vault) updateManifest(artifactID string, mutate func(*Manifest) error) error {
	delay := v.opts.Retry.BaseDelay
	for attempt := 0; ; attempt++ {
		record, err := v.store.LoadManifest(artifactID)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("artifact %s: %w", artifactID, ErrNotFound)
			}
			return fmt.Errorf("failed to load manifest: %w", ErrStorageUnavailable)
		}

		var manifest Manifest
		if err = json.Unmarshal(record.Data, &manifest); err != nil {
			return fmt.Errorf("failed to parse manifest %s: %w", artifactID, err)
		}
		if err = mutate(&manifest); err != nil {
			return err
		}

		data, err := json.Marshal(&manifest)
		if err != nil {
			return fmt.Errorf("failed to marshal manifest: %w", err)
		}

		_, err = v.store.SaveManifest(artifactID, data, record.Version)
		if err == nil {
			return nil
		}

		var conflict persist.ConcurrencyError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("failed to persist manifest: %w", ErrStorageUnavailable)
		}
		if attempt >= v.opts.Retry.MaxRetries {
			return fmt.Errorf("manifest %s contended beyond retry budget: %w",
				artifactID, ErrStorageUnavailable)
		}

		v.log.WithFields(logrus.Fields{
			"artifact_id": artifactID,
			"attempt":     attempt + 1,
		}).Debug("manifest update conflicted, retrying")
		time.Sleep(delay)
		delay *= 2
		if delay > v.opts.Retry.MaxDelay {
			delay = v.opts.Retry.MaxDelay
		}
	}
}

// audit appends to the ledger. Failures are logged and swallowed; the
// audit channel never vetoes a completed operation.
func (v *Vault) audit(action string, data map[string]interface{}) {
	if v.ledger == nil {
		return
	}
	if _, err := v.ledger.Append(action, data); err != nil {
		v.log.WithError(err).WithField("action", action).Warn("audit append failed")
	}
}
