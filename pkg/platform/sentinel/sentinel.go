package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into pkg/domain-errors codes.
//
//   - ErrNotFound: row does not exist (or is not visible to the caller)
//   - ErrConflict: a unique constraint already holds a different row
//   - ErrInvalidState: row is in the wrong state for the requested transition
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
