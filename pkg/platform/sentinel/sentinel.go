package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the ledger client, and the
// OCR backend return these (optionally wrapped) so services can translate them
// into coded domain errors at the boundary.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: uniqueness constraint hit (duplicate signature, re-verification)
// - ErrInvalidState: entity in wrong workflow state for the requested operation
// - ErrUnavailable: backend (ledger, OCR engine) missing, timed out, or down
// - ErrExpired: time-bounded resource has lapsed
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrExpired      = errors.New("expired")
)
