package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Well-known action tags recorded by the vault layer.
const (
	ActionGenesis    = "GENESIS"
	ActionUpload     = "UPLOAD"
	ActionAccess     = "ACCESS"
	ActionShare      = "SHARE"
	ActionRequest    = "REQUEST"
	ActionApprove    = "APPROVE"
	ActionDeny       = "DENY"
	ActionCreateCLSD = "CREATE_CLSD"
	ActionViewCLSD   = "VIEW_CLSD"
)

// GenesisPrevHash is the all-zero predecessor hash of the genesis entry.
var GenesisPrevHash = strings.Repeat("0", 64)

// Entry is one hash-chained event in the append-only ledger. Hash is
// computed over a canonical serialization of every preceding field and
// PrevHash links it to the previous entry's stored hash.
type Entry struct {
	ID        string                 `json:"id"`
	Index     int                    `json:"index"`
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Data      map[string]interface{} `json:"data"`
	PrevHash  string                 `json:"prev_hash"`
	Hash      string                 `json:"hash"`
}

// Ledger is an append-only, tamper-evident event log. Implementations
// serialize appends internally; callers never coordinate writes.
type Ledger interface {
	// Append links a new entry to the current tail and persists it.
	Append(action string, data map[string]interface{}) (*Entry, error)

	// Entries returns all entries in order, genesis first.
	Entries() ([]Entry, error)

	// Verify walks the chain from genesis and fails fast at the first
	// entry whose stored hash or predecessor link does not hold. The
	// detail string names the failing index. An absent or empty chain
	// is invalid.
	Verify() (valid bool, detail string)

	Close() error
}

// HashEntry computes the canonical SHA-256 hash of an entry, covering
// every stored field except Hash itself. The payload is serialized as
// JSON (Go sorts map keys, making it order-independent) while the
// overall field order is fixed.
func HashEntry(e Entry) (string, error) {
	data := e.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to serialize entry payload: %w", err)
	}

	s := fmt.Sprintf("%s|%d|%s|%s|%s|%s",
		e.ID,
		e.Index,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Action,
		payload,
		e.PrevHash,
	)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

// verifyEntries implements the shared chain walk for all backends.
func verifyEntries(entries []Entry) (bool, string) {
	if len(entries) == 0 {
		return false, "empty chain"
	}

	prevHash := GenesisPrevHash
	for i, e := range entries {
		if e.Index != i {
			return false, fmt.Sprintf("index gap at entry %d: stored index %d", i, e.Index)
		}
		if e.PrevHash != prevHash {
			return false, fmt.Sprintf("hash chain broken at index %d: predecessor hash mismatch", i)
		}
		computed, err := HashEntry(e)
		if err != nil {
			return false, fmt.Sprintf("unhashable entry at index %d: %v", i, err)
		}
		if e.Hash != computed {
			return false, fmt.Sprintf("invalid entry hash at index %d: tampering detected", i)
		}
		prevHash = e.Hash
	}
	return true, fmt.Sprintf("chain verified: %d entries", len(entries))
}

func genesisEntry(id string) (Entry, error) {
	e := Entry{
		ID:        id,
		Index:     0,
		Timestamp: time.Now().UTC(),
		Action:    ActionGenesis,
		Data:      map[string]interface{}{},
		PrevHash:  GenesisPrevHash,
	}
	hash, err := HashEntry(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hash
	return e, nil
}

func nextEntry(id string, tail Entry, action string, data map[string]interface{}) (Entry, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	e := Entry{
		ID:        id,
		Index:     tail.Index + 1,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Data:      data,
		PrevHash:  tail.Hash,
	}
	hash, err := HashEntry(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hash
	return e, nil
}
