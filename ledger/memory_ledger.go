package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// MemoryLedger keeps the chain in memory. Used by tests and as a
// stand-in when no durable trail is wanted.
type MemoryLedger struct {
	entries []Entry
	mu      sync.Mutex
}

// NewMemoryLedger creates an in-memory ledger with a genesis entry.
func NewMemoryLedger() (*MemoryLedger, error) {
	genesis, err := genesisEntry(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &MemoryLedger{entries: []Entry{genesis}}, nil
}

// Append implements Ledger.
func (ml *MemoryLedger) Append(action string, data map[string]interface{}) (*Entry, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	entry, err := nextEntry(uuid.NewString(), ml.entries[len(ml.entries)-1], action, data)
	if err != nil {
		return nil, err
	}
	ml.entries = append(ml.entries, entry)
	return &entry, nil
}

// Entries implements Ledger.
func (ml *MemoryLedger) Entries() ([]Entry, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	out := make([]Entry, len(ml.entries))
	copy(out, ml.entries)
	return out, nil
}

// Verify implements Ledger.
func (ml *MemoryLedger) Verify() (bool, string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return verifyEntries(ml.entries)
}

// Close implements Ledger.
func (ml *MemoryLedger) Close() error { return nil }

// Tamper overwrites the entry at index in place. Only for tests that
// exercise chain verification.
func (ml *MemoryLedger) Tamper(index int, mutate func(*Entry)) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if index >= 0 && index < len(ml.entries) {
		mutate(&ml.entries[index])
	}
}
