package suraksh

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateClearanceMatrix(t *testing.T) {
	tests := []struct {
		name       string
		clearance  int
		tier       int
		exceptions []string
		allowed    bool
		reason     string
	}{
		{"superuser bypasses any tier", 4, 3, nil, true, ReasonSuperuser},
		{"superuser outranks exceptions", 4, 1, []string{"X"}, true, ReasonSuperuser},
		{"higher clearance", 3, 1, nil, true, ReasonClearanceSufficient},
		{"exact match", 2, 2, nil, true, ReasonClearanceMatch},
		{"lower clearance denied", 1, 2, nil, false, ReasonAccessDenied},
		{"lower clearance with grant", 1, 2, []string{"X"}, true, ReasonApprovedAccess},
		{"grant for someone else", 1, 2, []string{"Y"}, false, ReasonAccessDenied},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			user := &User{ID: "X", Clearance: tc.clearance}
			decision := Validate(user, tc.tier, tc.exceptions)
			assert.Equal(t, tc.allowed, decision.Allowed)
			assert.Equal(t, tc.reason, decision.Reason)
		})
	}
}

func TestRequestAccessUnknownArtifact(t *testing.T) {
	vault := newTestVault(t)

	_, err := vault.RequestAccess("U1", "deadbeefdeadbeefdeadbeefdeadbeef", "why")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDenyRequestLeavesManifestUntouched(t *testing.T) {
	vault := newTestVault(t)

	id, err := vault.Upload("U2", "f", []byte("payload"), 2)
	require.NoError(t, err)

	requestID, err := vault.RequestAccess("U1", id, "curiosity")
	require.NoError(t, err)

	require.NoError(t, vault.DenyRequest(requestID, "SU"))

	manifest, err := vault.loadManifest(id)
	require.NoError(t, err)
	assert.Empty(t, manifest.ApprovedAccess)

	_, err = vault.Retrieve("U1", id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessDenied))

	// A processed request cannot flip state.
	err = vault.ApproveRequest(requestID, "SU")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyProcessed))
}

func TestPendingRequestsOrdering(t *testing.T) {
	vault := newTestVault(t)

	id, err := vault.Upload("U3", "f", []byte("payload"), 3)
	require.NoError(t, err)

	first, err := vault.RequestAccess("U1", id, "first")
	require.NoError(t, err)
	second, err := vault.RequestAccess("U2", id, "second")
	require.NoError(t, err)

	pending, err := vault.PendingRequests()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)
	assert.Equal(t, second, pending[1].ID)

	require.NoError(t, vault.ApproveRequest(first, "SU"))

	pending, err = vault.PendingRequests()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)
}

func TestApproveAppendsExceptionOnce(t *testing.T) {
	vault := newTestVault(t)

	id, err := vault.Upload("U3", "f", []byte("payload"), 3)
	require.NoError(t, err)

	r1, err := vault.RequestAccess("U1", id, "a")
	require.NoError(t, err)
	r2, err := vault.RequestAccess("U1", id, "b")
	require.NoError(t, err)

	require.NoError(t, vault.ApproveRequest(r1, "SU"))
	require.NoError(t, vault.ApproveRequest(r2, "SU"))

	manifest, err := vault.loadManifest(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, manifest.ApprovedAccess)
}
