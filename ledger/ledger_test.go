package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLedgerGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")

	fl, err := NewFileLedger(path)
	require.NoError(t, err)
	defer fl.Close()

	entries, err := fl.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	genesis := entries[0]
	assert.Equal(t, 0, genesis.Index)
	assert.Equal(t, ActionGenesis, genesis.Action)
	assert.Equal(t, GenesisPrevHash, genesis.PrevHash)

	valid, detail := fl.Verify()
	assert.True(t, valid, detail)
}

func TestFileLedgerAppendAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")

	fl, err := NewFileLedger(path)
	require.NoError(t, err)
	defer fl.Close()

	for i := 0; i < 10; i++ {
		_, err = fl.Append(ActionUpload, map[string]interface{}{
			"file_id":  fmt.Sprintf("artifact-%d", i),
			"uploader": "U2",
		})
		require.NoError(t, err)
	}

	entries, err := fl.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 11)

	// Every entry links to its immediate predecessor.
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Hash, entries[i].PrevHash, "link at index %d", i)
		assert.Equal(t, i, entries[i].Index)
	}

	valid, detail := fl.Verify()
	assert.True(t, valid, detail)
}

func TestFileLedgerResumesFromExistingChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")

	fl, err := NewFileLedger(path)
	require.NoError(t, err)
	_, err = fl.Append(ActionUpload, map[string]interface{}{"file_id": "a"})
	require.NoError(t, err)
	require.NoError(t, fl.Close())

	// Reopening must continue the chain, not restart it.
	fl2, err := NewFileLedger(path)
	require.NoError(t, err)
	defer fl2.Close()

	entry, err := fl2.Append(ActionAccess, map[string]interface{}{"file_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Index)

	valid, detail := fl2.Verify()
	assert.True(t, valid, detail)
}

func TestFileLedgerDetectsOnDiskTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")

	fl, err := NewFileLedger(path)
	require.NoError(t, err)
	defer fl.Close()

	for i := 0; i < 4; i++ {
		_, err = fl.Append(ActionUpload, map[string]interface{}{"file_id": fmt.Sprintf("f%d", i)})
		require.NoError(t, err)
	}

	// Rewrite entry 2 with a modified payload but its original hash.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 5)

	var victim Entry
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &victim))
	victim.Data["file_id"] = "forged"
	forged, err := json.Marshal(victim)
	require.NoError(t, err)
	lines[2] = string(forged)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))

	valid, detail := fl.Verify()
	assert.False(t, valid)
	assert.Contains(t, detail, "index 2")
}

func TestMemoryLedgerTamperLocalization(t *testing.T) {
	ml, err := NewMemoryLedger()
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err = ml.Append(ActionAccess, map[string]interface{}{"file_id": fmt.Sprintf("f%d", i)})
		require.NoError(t, err)
	}

	valid, _ := ml.Verify()
	require.True(t, valid)

	// Mutating any stored field of entry i must be reported at index i,
	// not earlier or later.
	for _, idx := range []int{1, 3, 6} {
		ml, err := NewMemoryLedger()
		require.NoError(t, err)
		for i := 0; i < 6; i++ {
			_, err = ml.Append(ActionAccess, map[string]interface{}{"file_id": fmt.Sprintf("f%d", i)})
			require.NoError(t, err)
		}

		ml.Tamper(idx, func(e *Entry) {
			e.Action = "FORGED"
		})

		valid, detail := ml.Verify()
		assert.False(t, valid)
		assert.Contains(t, detail, fmt.Sprintf("index %d", idx))
	}
}

func TestVerifyDetectsMutatedEntryID(t *testing.T) {
	ml, err := NewMemoryLedger()
	require.NoError(t, err)

	_, err = ml.Append(ActionUpload, map[string]interface{}{"file_id": "f1"})
	require.NoError(t, err)

	ml.Tamper(1, func(e *Entry) {
		e.ID = "00000000-0000-0000-0000-000000000000"
	})

	valid, detail := ml.Verify()
	assert.False(t, valid)
	assert.Contains(t, detail, "index 1")
}

func TestVerifyEmptyChainIsInvalid(t *testing.T) {
	valid, detail := verifyEntries(nil)
	assert.False(t, valid)
	assert.Contains(t, detail, "empty")
}

func TestHashEntryPayloadOrderIndependence(t *testing.T) {
	e := Entry{
		Index:    3,
		Action:   ActionShare,
		PrevHash: GenesisPrevHash,
		Data: map[string]interface{}{
			"from": "U2", "to": "U3", "file_id": "abc",
		},
	}

	h1, err := HashEntry(e)
	require.NoError(t, err)

	// Rebuild the payload map in a different insertion order.
	e.Data = map[string]interface{}{
		"to": "U3", "file_id": "abc", "from": "U2",
	}
	h2, err := HashEntry(e)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}
