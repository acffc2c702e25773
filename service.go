package suraksh

import "github.com/Ayush-3103-AI/Suraksh/ledger"

// VaultService is the full operation surface of the vault, as consumed
// by the CLI and by external subsystems that only need the raw
// artifact bytes and metadata.
type VaultService interface {
	// Artifacts
	Upload(userID, filename string, data []byte, clearance int) (string, error)
	Retrieve(userID, artifactID string) ([]byte, error)
	Share(senderID, receiverID, artifactID string) (string, error)
	ListArtifacts() ([]ArtifactSummary, error)
	GetArtifactInfo(artifactID string) (*ArtifactSummary, error)

	// Access workflow
	RequestAccess(userID, artifactID, justification string) (string, error)
	ApproveRequest(requestID, approverID string) error
	DenyRequest(requestID, approverID string) error
	PendingRequests() ([]AccessRequest, error)

	// Layered documents
	CreateCLSD(userID, title string, sections map[int]string) (string, error)
	RetrieveCLSD(userID, documentID string) (*Document, error)
	ListCLSD(userClearance int) ([]ArtifactSummary, error)

	// Audit
	LedgerEntries() ([]ledger.Entry, error)
	VerifyLedger() (bool, string)

	Close() error
}

var _ VaultService = (*Vault)(nil)
