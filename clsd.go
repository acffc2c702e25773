package suraksh

import (
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/awnumar/memguard"

	"github.com/Ayush-3103-AI/Suraksh/internal/crypto"
	"github.com/Ayush-3103-AI/Suraksh/ledger"
)

func clsdSectionAAD(tier int) []byte {
	return []byte(fmt.Sprintf("clsd-section-%d", tier))
}

// CreateCLSD stores a clearance-layered document. Each section is
// encrypted under its own tier's clearance key, so a reader only ever
// holds key material for the tiers their clearance reaches.
func (v *Vault) CreateCLSD(userID, title string, sections map[int]string) (string, error) {
	user, err := v.registry.User(userID)
	if err != nil {
		return "", err
	}
	if len(sections) == 0 {
		return "", fmt.Errorf("document has no sections")
	}

	tiers := make([]int, 0, len(sections))
	for tier := range sections {
		if tier < TierMin || tier > TierMax {
			return "", fmt.Errorf("section tier %d outside storable tiers %d..%d: %w",
				tier, TierMin, TierMax, ErrAccessDenied)
		}
		tiers = append(tiers, tier)
	}
	sort.Ints(tiers)

	documentID, err := newArtifactID()
	if err != nil {
		return "", err
	}

	var sealed []CLSDSection
	for _, tier := range tiers {
		text := sections[tier]
		if text == "" {
			continue
		}

		enclave, err := v.registry.TierKey(tier)
		if err != nil {
			return "", err
		}
		tierKey, err := enclave.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open tier %d key: %w", tier, err)
		}
		ciphertext, err := crypto.Encrypt(tierKey.Bytes(), []byte(text), clsdSectionAAD(tier))
		tierKey.Destroy()
		if err != nil {
			return "", fmt.Errorf("failed to encrypt tier %d section: %w", tier, err)
		}

		sealed = append(sealed, CLSDSection{
			Level:      tier,
			Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
			Hash:       hashBytes(ciphertext),
		})
	}
	if len(sealed) == 0 {
		return "", fmt.Errorf("document has no sections")
	}

	manifest := Manifest{
		ID:        documentID,
		Type:      ArtifactTypeCLSD,
		Clearance: sealed[len(sealed)-1].Level,
		Sections:  sealed,
		Title:     title,
		CreatedBy: user.ID,
		Timestamp: time.Now().UTC(),
	}
	if err = v.saveManifest(&manifest); err != nil {
		return "", err
	}

	v.audit(ledger.ActionCreateCLSD, map[string]interface{}{
		"document_id": documentID,
		"user":        user.ID,
		"title":       title,
		"tiers":       tiers,
	})
	return documentID, nil
}

// RetrieveCLSD decrypts the sections of a layered document that the
// user's clearance reaches. Every eligible section's ciphertext hash
// is verified before any decryption; a single corrupted section aborts
// the whole retrieval rather than returning a silently truncated
// document.
func (v *Vault) RetrieveCLSD(userID, documentID string) (*Document, error) {
	user, err := v.registry.User(userID)
	if err != nil {
		return nil, err
	}
	manifest, err := v.loadManifest(documentID)
	if err != nil {
		return nil, err
	}
	if manifest.Type != ArtifactTypeCLSD {
		return nil, fmt.Errorf("artifact %s is not a layered document: %w", documentID, ErrNotFound)
	}

	var eligible []CLSDSection
	for _, section := range manifest.Sections {
		if user.IsSuperuser() || section.Level <= user.Clearance {
			eligible = append(eligible, section)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("user %s reaches no section of document %s: %w",
			userID, documentID, ErrAccessDenied)
	}

	// Hash every eligible ciphertext before touching key material.
	ciphertexts := make(map[int][]byte, len(eligible))
	for _, section := range eligible {
		ciphertext, err := base64.StdEncoding.DecodeString(section.Ciphertext)
		if err != nil || hashBytes(ciphertext) != section.Hash {
			return nil, fmt.Errorf("document %s tier %d section failed verification: %w",
				documentID, section.Level, ErrIntegrityViolation)
		}
		ciphertexts[section.Level] = ciphertext
	}

	document := &Document{
		ID:        manifest.ID,
		Title:     manifest.Title,
		CreatedBy: manifest.CreatedBy,
		Timestamp: manifest.Timestamp,
		Sections:  make(map[int]string, len(eligible)),
	}
	decrypted := make([]int, 0, len(eligible))
	for _, section := range eligible {
		enclave, err := v.registry.TierKey(section.Level)
		if err != nil {
			return nil, err
		}
		tierKey, err := enclave.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open tier %d key: %w", section.Level, err)
		}
		plaintext, err := crypto.Decrypt(tierKey.Bytes(), ciphertexts[section.Level], clsdSectionAAD(section.Level))
		tierKey.Destroy()
		if err != nil {
			return nil, fmt.Errorf("document %s tier %d section failed authentication: %w",
				documentID, section.Level, ErrIntegrityViolation)
		}
		document.Sections[section.Level] = string(plaintext)
		decrypted = append(decrypted, section.Level)
		memguard.WipeBytes(plaintext)
	}

	v.audit(ledger.ActionViewCLSD, map[string]interface{}{
		"document_id": documentID,
		"user":        user.ID,
		"tiers":       decrypted,
	})
	return document, nil
}

// ListCLSD returns metadata for every layered document with at least
// one section the given clearance reaches. Nothing is decrypted.
func (v *Vault) ListCLSD(userClearance int) ([]ArtifactSummary, error) {
	ids, err := v.store.ListManifests()
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", ErrStorageUnavailable)
	}

	var documents []ArtifactSummary
	for _, id := range ids {
		manifest, err := v.loadManifest(id)
		if err != nil {
			return nil, err
		}
		if manifest.Type != ArtifactTypeCLSD {
			continue
		}

		reachable := false
		for _, section := range manifest.Sections {
			if userClearance >= TierSuperuser || section.Level <= userClearance {
				reachable = true
				break
			}
		}
		if !reachable {
			continue
		}

		documents = append(documents, ArtifactSummary{
			ID:        manifest.ID,
			Type:      manifest.Type,
			Title:     manifest.Title,
			Uploader:  manifest.CreatedBy,
			Clearance: manifest.Clearance,
			Timestamp: manifest.Timestamp,
		})
	}
	sort.Slice(documents, func(i, j int) bool {
		return documents[i].Timestamp.Before(documents[j].Timestamp)
	})
	return documents, nil
}
