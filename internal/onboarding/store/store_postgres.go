package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roster/internal/onboarding/models"
	"roster/pkg/platform/sentinel"
)

// Postgres persists profiles in PostgreSQL. Reservations are held in-process:
// this service runs as a single writer per deployment, so cross-instance
// reservation coordination is out of scope (use the Redis backend when running
// more than one replica).
type Postgres struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool:     pool,
		inflight: make(map[string]struct{}),
	}
}

// EnsureSchema creates the profiles table when it does not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS enriched_profiles (
			employee_id  TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			email        TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			department   TEXT NOT NULL DEFAULT '',
			start_date   TEXT NOT NULL DEFAULT '',
			groups       TEXT[] NOT NULL DEFAULT '{}',
			applications TEXT[] NOT NULL DEFAULT '{}',
			onboarded    BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure enriched_profiles schema: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (models.EnrichedProfile, error) {
	var p models.EnrichedProfile
	err := s.pool.QueryRow(ctx, `
		SELECT employee_id, display_name, email, title, department, start_date,
		       groups, applications, onboarded
		FROM enriched_profiles
		WHERE employee_id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Email, &p.Title, &p.Department, &p.StartDate,
		&p.Groups, &p.Applications, &p.Onboarded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EnrichedProfile{}, sentinel.ErrNotFound
		}
		return models.EnrichedProfile{}, fmt.Errorf("get profile %q: %w", id, err)
	}
	return p, nil
}

func (s *Postgres) Reserve(_ context.Context, id string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.inflight[id]; held {
		return nil, fmt.Errorf("reserve %q: %w", id, sentinel.ErrConflict)
	}
	s.inflight[id] = struct{}{}
	return &postgresReservation{store: s, id: id}, nil
}

type postgresReservation struct {
	store *Postgres
	id    string
	done  bool
}

func (r *postgresReservation) Commit(ctx context.Context, profile models.EnrichedProfile) error {
	r.store.mu.Lock()
	if r.done {
		r.store.mu.Unlock()
		return fmt.Errorf("commit %q: %w", r.id, sentinel.ErrInvalidState)
	}
	r.store.mu.Unlock()

	// nil slices would encode as SQL NULL and violate the NOT NULL columns.
	groups := profile.Groups
	if groups == nil {
		groups = []string{}
	}
	applications := profile.Applications
	if applications == nil {
		applications = []string{}
	}

	_, err := r.store.pool.Exec(ctx, `
		INSERT INTO enriched_profiles
			(employee_id, display_name, email, title, department, start_date,
			 groups, applications, onboarded, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (employee_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email        = EXCLUDED.email,
			title        = EXCLUDED.title,
			department   = EXCLUDED.department,
			start_date   = EXCLUDED.start_date,
			groups       = EXCLUDED.groups,
			applications = EXCLUDED.applications,
			onboarded    = EXCLUDED.onboarded,
			updated_at   = now()`,
		profile.ID, profile.Name, profile.Email, profile.Title, profile.Department,
		profile.StartDate, groups, applications, profile.Onboarded)
	if err != nil {
		return fmt.Errorf("commit %q: %w", r.id, err)
	}

	r.store.mu.Lock()
	delete(r.store.inflight, r.id)
	r.done = true
	r.store.mu.Unlock()
	return nil
}

func (r *postgresReservation) Release() {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.done {
		return
	}
	delete(r.store.inflight, r.id)
	r.done = true
}
