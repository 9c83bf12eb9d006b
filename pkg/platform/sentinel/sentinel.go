package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Persistence adapters and device
// drivers return these (optionally wrapped) so services can translate them into
// domain error codes:
// - ErrNotFound: credential or capture does not exist
// - ErrConflict: concurrent write lost (WATCH abort, serialization failure)
// - ErrInvalidState: entity in wrong state for the requested transition
// - ErrUnavailable: backend, provider, or device temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
