package suraksh

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ayush-3103-AI/Suraksh/internal/crypto"
	"github.com/Ayush-3103-AI/Suraksh/ledger"
	"github.com/Ayush-3103-AI/Suraksh/persist"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()

	led, err := ledger.NewMemoryLedger()
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	vault, err := NewWithStore(Options{Logger: log}, persist.NewMemoryStore(), led)
	require.NoError(t, err)
	return vault
}

func randomPayload(t *testing.T, size int) []byte {
	t.Helper()
	payload := make([]byte, size)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	return payload
}

func TestUploadRetrieveRoundTrip(t *testing.T) {
	vault := newTestVault(t)

	sizes := []int{0, 1, 100, DefaultChunkSize, DefaultChunkSize + 1, 3*DefaultChunkSize + 17}
	for _, size := range sizes {
		payload := randomPayload(t, size)

		id, err := vault.Upload("U2", "report.pdf", payload, 2)
		require.NoError(t, err, "size %d", size)

		got, err := vault.Retrieve("U2", id)
		require.NoError(t, err, "size %d", size)
		assert.True(t, bytes.Equal(payload, got), "size %d", size)
	}
}

func TestUploadRejectsInvalidClearance(t *testing.T) {
	vault := newTestVault(t)

	for _, clearance := range []int{0, 4, 5, -1} {
		_, err := vault.Upload("U2", "f", []byte("x"), clearance)
		require.Error(t, err, "clearance %d", clearance)
	}
}

func TestUploadUnknownUser(t *testing.T) {
	vault := newTestVault(t)

	_, err := vault.Upload("ghost", "f", []byte("x"), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRetrieveUnknownArtifact(t *testing.T) {
	vault := newTestVault(t)

	_, err := vault.Retrieve("SU", "deadbeefdeadbeefdeadbeefdeadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRetrieveDeniedBelowClearance(t *testing.T) {
	vault := newTestVault(t)

	id, err := vault.Upload("U3", "secret.txt", []byte("tier three"), 3)
	require.NoError(t, err)

	_, err = vault.Retrieve("U1", id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessDenied))

	// Higher and equal clearance both pass; superuser bypasses.
	for _, userID := range []string{"U3", "SU"} {
		got, err := vault.Retrieve(userID, id)
		require.NoError(t, err, userID)
		assert.Equal(t, []byte("tier three"), got)
	}
}

func TestRetrieveDetectsChunkTampering(t *testing.T) {
	store := persist.NewMemoryStore()
	led, err := ledger.NewMemoryLedger()
	require.NoError(t, err)
	vault, err := NewWithStore(Options{}, store, led)
	require.NoError(t, err)

	id, err := vault.Upload("U2", "f", randomPayload(t, 2*DefaultChunkSize), 2)
	require.NoError(t, err)

	sealed, err := store.LoadChunk(id, DefaultChunkSize)
	require.NoError(t, err)
	sealed[len(sealed)/2] ^= 0x01
	require.NoError(t, store.SaveChunk(id, DefaultChunkSize, sealed))

	_, err = vault.Retrieve("U2", id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIntegrityViolation))
}

func TestRetrieveDetectsMissingChunk(t *testing.T) {
	store := persist.NewMemoryStore()
	led, err := ledger.NewMemoryLedger()
	require.NoError(t, err)
	vault, err := NewWithStore(Options{}, store, led)
	require.NoError(t, err)

	id, err := vault.Upload("U2", "f", randomPayload(t, 2*DefaultChunkSize), 2)
	require.NoError(t, err)

	require.NoError(t, store.DeleteChunks(id))

	_, err = vault.Retrieve("U2", id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIntegrityViolation))
}

func TestShareProducesIndependentKeyMaterial(t *testing.T) {
	vault := newTestVault(t)

	payload := randomPayload(t, DefaultChunkSize+100)
	id, err := vault.Upload("U2", "case.txt", payload, 2)
	require.NoError(t, err)

	newID, err := vault.Share("U2", "U3", id)
	require.NoError(t, err)
	require.NotEqual(t, id, newID)

	original, err := vault.loadManifest(id)
	require.NoError(t, err)
	copied, err := vault.loadManifest(newID)
	require.NoError(t, err)

	assert.NotEqual(t, original.WrappedFEK, copied.WrappedFEK)
	assert.NotEmpty(t, copied.RecipientFEK)
	assert.Equal(t, id, copied.SharedFrom)
	assert.Equal(t, "U3", copied.SharedWith)

	got, err := vault.Retrieve("U3", newID)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestShareCopyNotDecryptableWithSourceFEK(t *testing.T) {
	store := persist.NewMemoryStore()
	led, err := ledger.NewMemoryLedger()
	require.NoError(t, err)
	vault, err := NewWithStore(Options{}, store, led)
	require.NoError(t, err)

	id, err := vault.Upload("U2", "case.txt", randomPayload(t, DefaultChunkSize), 2)
	require.NoError(t, err)
	newID, err := vault.Share("U2", "U3", id)
	require.NoError(t, err)

	original, err := vault.loadManifest(id)
	require.NoError(t, err)
	sourceFEK, err := vault.unwrapFEK(original)
	require.NoError(t, err)

	master, err := crypto.DeriveKey(sourceFEK, nil, []byte(infoFileMaster), crypto.KeySize)
	require.NoError(t, err)
	chunkKey, err := crypto.DeriveKey(master, nil, chunkInfo(0), crypto.KeySize)
	require.NoError(t, err)

	sealed, err := store.LoadChunk(newID, 0)
	require.NoError(t, err)

	_, err = crypto.Decrypt(chunkKey, sealed, []byte(newID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, crypto.ErrAuthentication))
}

func TestShareDeniedForLowClearanceReceiver(t *testing.T) {
	vault := newTestVault(t)

	id, err := vault.Upload("U3", "f", []byte("tier three"), 3)
	require.NoError(t, err)

	_, err = vault.Share("U3", "U1", id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessDenied))

	// Superuser receiver is exempt; the copy keeps the artifact tier.
	newID, err := vault.Share("U3", "SU", id)
	require.NoError(t, err)

	copied, err := vault.loadManifest(newID)
	require.NoError(t, err)
	assert.Equal(t, 3, copied.Clearance)
}

func TestShareSenderMustBeAuthorized(t *testing.T) {
	vault := newTestVault(t)

	id, err := vault.Upload("U3", "f", []byte("tier three"), 3)
	require.NoError(t, err)

	_, err = vault.Share("U1", "U3", id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestListArtifacts(t *testing.T) {
	vault := newTestVault(t)

	id1, err := vault.Upload("U1", "a.txt", []byte("a"), 1)
	require.NoError(t, err)
	id2, err := vault.Upload("U2", "b.txt", []byte("b"), 2)
	require.NoError(t, err)

	summaries, err := vault.ListArtifacts()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := map[string]ArtifactSummary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	assert.Equal(t, "a.txt", byID[id1].Filename)
	assert.Equal(t, 2, byID[id2].Clearance)
}

func TestEndToEndRequestApproveRetrieve(t *testing.T) {
	vault := newTestVault(t)

	payload := randomPayload(t, 10*1024)
	id, err := vault.Upload("U2", "case-file.bin", payload, 2)
	require.NoError(t, err)

	// Tier-1 officer is denied outright.
	_, err = vault.Retrieve("U1", id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessDenied))

	requestID, err := vault.RequestAccess("U1", id, "case review")
	require.NoError(t, err)

	// Only a superuser may approve.
	err = vault.ApproveRequest(requestID, "U3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessDenied))

	require.NoError(t, vault.ApproveRequest(requestID, "SU"))

	got, err := vault.Retrieve("U1", id)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))

	// Approving twice is rejected.
	err = vault.ApproveRequest(requestID, "SU")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyProcessed))

	entries, err := vault.LedgerEntries()
	require.NoError(t, err)

	var actions []string
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{
		ledger.ActionGenesis,
		ledger.ActionUpload,
		ledger.ActionRequest,
		ledger.ActionApprove,
		ledger.ActionAccess,
	}, actions)

	valid, detail := vault.VerifyLedger()
	assert.True(t, valid, detail)
}

func TestLedgerFailureDoesNotAbortOperations(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	vault, err := NewWithStore(Options{Logger: log}, persist.NewMemoryStore(), failingLedger{})
	require.NoError(t, err)

	id, err := vault.Upload("U2", "f", []byte("payload"), 2)
	require.NoError(t, err)

	got, err := vault.Retrieve("U2", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

type failingLedger struct{}

func (failingLedger) Append(string, map[string]interface{}) (*ledger.Entry, error) {
	return nil, errors.New("ledger down")
}
func (failingLedger) Entries() ([]ledger.Entry, error) { return nil, errors.New("ledger down") }
func (failingLedger) Verify() (bool, string)           { return false, "ledger down" }
func (failingLedger) Close() error                     { return nil }
