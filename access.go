package suraksh

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ayush-3103-AI/Suraksh/ledger"
	"github.com/Ayush-3103-AI/Suraksh/persist"
)

// Validate evaluates a user's clearance against an artifact tier. The
// rules apply in order: superuser bypass, strictly higher clearance,
// exact match, granted exception, denial. It is a pure function and
// never touches key material.
func Validate(user *User, artifactTier int, exceptions []string) Decision {
	if user.IsSuperuser() {
		return Decision{Allowed: true, Reason: ReasonSuperuser}
	}
	if user.Clearance > artifactTier {
		return Decision{Allowed: true, Reason: ReasonClearanceSufficient}
	}
	if user.Clearance == artifactTier {
		return Decision{Allowed: true, Reason: ReasonClearanceMatch}
	}
	for _, id := range exceptions {
		if id == user.ID {
			return Decision{Allowed: true, Reason: ReasonApprovedAccess}
		}
	}
	return Decision{Allowed: false, Reason: ReasonAccessDenied}
}

// RequestAccess files an elevation request for an artifact the user
// cannot currently read. It returns the request ID.
func (v *Vault) RequestAccess(userID, artifactID, justification string) (string, error) {
	user, err := v.registry.User(userID)
	if err != nil {
		return "", err
	}
	if _, err = v.loadManifest(artifactID); err != nil {
		return "", err
	}

	request := AccessRequest{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		ArtifactID: artifactID,
		Reason:     justification,
		Status:     RequestPending,
		CreatedAt:  time.Now().UTC(),
	}

	if err = v.saveRequest(&request, ""); err != nil {
		return "", err
	}

	v.audit(ledger.ActionRequest, map[string]interface{}{
		"request_id":  request.ID,
		"user":        user.ID,
		"artifact_id": artifactID,
		"reason":      justification,
	})
	return request.ID, nil
}

// ApproveRequest grants a pending request. Only a superuser may
// approve; the requester is appended to the artifact's exception list.
func (v *Vault) ApproveRequest(requestID, approverID string) error {
	approver, err := v.registry.User(approverID)
	if err != nil {
		return err
	}
	if !approver.IsSuperuser() {
		return fmt.Errorf("approver %s lacks superuser clearance: %w", approverID, ErrAccessDenied)
	}

	request, version, err := v.loadRequest(requestID)
	if err != nil {
		return err
	}
	if request.Status != RequestPending {
		return fmt.Errorf("request %s is %s: %w", requestID, request.Status, ErrAlreadyProcessed)
	}

	// Grant on the manifest first so a crash between the two writes
	// leaves a re-approvable pending request, never an orphaned grant.
	err = v.updateManifest(request.ArtifactID, func(m *Manifest) error {
		for _, id := range m.ApprovedAccess {
			if id == request.UserID {
				return nil
			}
		}
		m.ApprovedAccess = append(m.ApprovedAccess, request.UserID)
		return nil
	})
	if err != nil {
		return err
	}

	request.Status = RequestApproved
	request.Approver = approverID
	request.ProcessedAt = time.Now().UTC()
	if err = v.saveRequest(request, version); err != nil {
		return err
	}

	v.audit(ledger.ActionApprove, map[string]interface{}{
		"request_id":  request.ID,
		"user":        request.UserID,
		"artifact_id": request.ArtifactID,
		"approver":    approverID,
	})
	v.log.WithFields(logrus.Fields{
		"request_id": request.ID,
		"approver":   approverID,
	}).Info("access request approved")
	return nil
}

// DenyRequest rejects a pending request without touching the manifest.
func (v *Vault) DenyRequest(requestID, approverID string) error {
	approver, err := v.registry.User(approverID)
	if err != nil {
		return err
	}
	if !approver.IsSuperuser() {
		return fmt.Errorf("approver %s lacks superuser clearance: %w", approverID, ErrAccessDenied)
	}

	request, version, err := v.loadRequest(requestID)
	if err != nil {
		return err
	}
	if request.Status != RequestPending {
		return fmt.Errorf("request %s is %s: %w", requestID, request.Status, ErrAlreadyProcessed)
	}

	request.Status = RequestDenied
	request.Approver = approverID
	request.ProcessedAt = time.Now().UTC()
	if err = v.saveRequest(request, version); err != nil {
		return err
	}

	v.audit(ledger.ActionDeny, map[string]interface{}{
		"request_id":  request.ID,
		"user":        request.UserID,
		"artifact_id": request.ArtifactID,
		"approver":    approverID,
	})
	return nil
}

// PendingRequests returns all requests still awaiting a decision,
// oldest first.
func (v *Vault) PendingRequests() ([]AccessRequest, error) {
	ids, err := v.store.ListRequests()
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", ErrStorageUnavailable)
	}

	var pending []AccessRequest
	for _, id := range ids {
		request, _, err := v.loadRequest(id)
		if err != nil {
			return nil, err
		}
		if request.Status == RequestPending {
			pending = append(pending, *request)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (v *Vault) loadRequest(requestID string) (*AccessRequest, string, error) {
	record, err := v.store.LoadRequest(requestID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("request %s: %w", requestID, ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to load request: %w", ErrStorageUnavailable)
	}

	var request AccessRequest
	if err = json.Unmarshal(record.Data, &request); err != nil {
		return nil, "", fmt.Errorf("failed to parse request %s: %w", requestID, err)
	}
	return &request, record.Version, nil
}

func (v *Vault) saveRequest(request *AccessRequest, expectedVersion string) error {
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err = v.store.SaveRequest(request.ID, data, expectedVersion); err != nil {
		var conflict persist.ConcurrencyError
		if errors.As(err, &conflict) {
			return fmt.Errorf("request %s was updated concurrently: %w", request.ID, ErrAlreadyProcessed)
		}
		return fmt.Errorf("failed to persist request: %w", ErrStorageUnavailable)
	}
	return nil
}
