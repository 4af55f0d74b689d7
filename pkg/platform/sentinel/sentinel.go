package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and collaborators return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: the company, receipt or document does not exist
//   - ErrConflict: optimistic version check failed on save
//   - ErrAlreadyUsed: a signature stage was already recorded
//   - ErrInvalidState: the document is in the wrong state for the operation
//   - ErrUnavailable: a collaborator is down or its circuit is open
//
// Validation failures (bad input, sealed fields) live in internal/issue.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
