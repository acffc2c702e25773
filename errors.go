package suraksh

import "errors"

// Operation failures surface as exactly one of these sentinels, wrapped
// with operation context. Callers branch with errors.Is.
var (
	// ErrNotFound indicates the referenced artifact, document, request
	// or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the caller's clearance does not permit
	// the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrIntegrityViolation indicates stored ciphertext, a wrapped key
	// or a content hash failed verification. No partial plaintext is
	// ever returned alongside it.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrAlreadyProcessed indicates an access request was already
	// approved or denied.
	ErrAlreadyProcessed = errors.New("request already processed")

	// ErrStorageUnavailable indicates the persistence backend failed.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
