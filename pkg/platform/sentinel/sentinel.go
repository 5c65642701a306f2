package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the IdP client return
// these (optionally wrapped) so the onboarding service can translate them into
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store or directory
// - ErrConflict: a reservation for the key is already held
// - ErrInvalidState: reservation already committed or released
// - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
