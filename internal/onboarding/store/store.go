// Package store keeps enriched profiles and enforces the
// one-enrichment-in-flight-per-employee invariant through reservations.
package store

import (
	"context"

	"roster/internal/onboarding/models"
)

// Reservation is the exclusivity token for one in-flight enrichment. Exactly
// one of Commit or Release must conclude it; Release after Commit is a no-op
// so callers can defer it unconditionally.
type Reservation interface {
	// Commit writes the profile (full replacement, last write wins) and
	// releases the reservation.
	Commit(ctx context.Context, profile models.EnrichedProfile) error

	// Release frees the reservation without writing. Idempotent.
	Release()
}

// Store is the keyed mapping from employee identifier to enriched profile.
// A write is only reachable through a held Reservation.
type Store interface {
	// Get returns the profile for id, or sentinel.ErrNotFound.
	Get(ctx context.Context, id string) (models.EnrichedProfile, error)

	// Reserve claims the enrichment slot for id. Returns sentinel.ErrConflict
	// while another reservation for the same id is held.
	Reserve(ctx context.Context, id string) (Reservation, error)
}
