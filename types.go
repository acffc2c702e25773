package suraksh

import "time"

// Clearance tiers. Tiers 1..3 carry clearance keys; tier 4 is the
// superuser bypass and is never issued a key.
const (
	TierMin       = 1
	TierMax       = 3
	TierSuperuser = 4
)

// Artifact types stored in manifests.
const (
	ArtifactTypeFile = "file"
	ArtifactTypeCLSD = "CLSD"
)

// Access decision reasons, in evaluation order.
const (
	ReasonSuperuser           = "SUPERUSER"
	ReasonClearanceSufficient = "CLEARANCE_SUFFICIENT"
	ReasonClearanceMatch      = "CLEARANCE_MATCH"
	ReasonApprovedAccess      = "APPROVED_ACCESS"
	ReasonAccessDenied        = "ACCESS_DENIED"
)

// Access request states.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestDenied   = "denied"
)

// User is a vault principal. The password is a deliberately weak demo
// credential inherited from the seed data; the exchange key pair backs
// the hybrid key wrap used during shares.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Org        string `json:"org"`
	Clearance  int    `json:"clearance"`
	Password   string `json:"password"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// IsSuperuser reports whether the user bypasses clearance checks.
func (u *User) IsSuperuser() bool {
	return u.Clearance >= TierSuperuser
}

// Decision is the outcome of a clearance evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// ChunkRef locates one encrypted chunk of an artifact by its plaintext
// byte offset.
type ChunkRef struct {
	Offset int `json:"offset"`
}

// CLSDSection is one clearance-stratified section of a layered
// document. Ciphertext is base64; Hash is the sha256 hex of the raw
// ciphertext, checked before any decryption.
type CLSDSection struct {
	Level      int    `json:"level"`
	Ciphertext string `json:"ciphertext"`
	Hash       string `json:"hash"`
}

// Manifest is the persisted record of an artifact. File artifacts use
// the chunk fields; CLSD documents use the section fields. The only
// mutation a manifest ever receives after creation is an append to
// ApprovedAccess through an approved request.
type Manifest struct {
	ID               string        `json:"id"`
	Type             string        `json:"type"`
	Uploader         string        `json:"uploader,omitempty"`
	Filename         string        `json:"filename,omitempty"`
	OriginalFilename string        `json:"original_filename,omitempty"`
	Clearance        int           `json:"clearance"`
	Chunks           []ChunkRef    `json:"chunks,omitempty"`
	WrappedFEK       string        `json:"wrapped_fek,omitempty"`
	RecipientFEK     string        `json:"recipient_wrapped_fek,omitempty"`
	FileHash         string        `json:"file_hash,omitempty"`
	ApprovedAccess   []string      `json:"approved_access,omitempty"`
	SharedFrom       string        `json:"shared_from,omitempty"`
	SharedWith       string        `json:"shared_with,omitempty"`
	Sections         []CLSDSection `json:"sections,omitempty"`
	Title            string        `json:"title,omitempty"`
	CreatedBy        string        `json:"created_by,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
}

// ArtifactSummary is the metadata-only listing view; producing it never
// touches key material.
type ArtifactSummary struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Filename   string    `json:"filename,omitempty"`
	Title      string    `json:"title,omitempty"`
	Uploader   string    `json:"uploader,omitempty"`
	Clearance  int       `json:"clearance"`
	SharedFrom string    `json:"shared_from,omitempty"`
	SharedWith string    `json:"shared_with,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AccessRequest is a pending, approved or denied elevation request for
// a single artifact.
type AccessRequest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ArtifactID  string    `json:"artifact_id"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	Approver    string    `json:"approver,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
}

// Document is a decrypted view of a CLSD document, containing only the
// sections the reader's clearance reaches.
type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	CreatedBy string         `json:"created_by"`
	Timestamp time.Time      `json:"timestamp"`
	Sections  map[int]string `json:"sections"`
}
