package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"roster/internal/onboarding/models"
	"roster/pkg/platform/sentinel"
)

const (
	redisProfilePrefix = "roster:profile:"
	redisReservePrefix = "roster:reserve:"

	// defaultReserveTTL bounds how long a crashed enrichment can block an
	// employee. Live requests finish or release well inside this window.
	defaultReserveTTL = 2 * time.Minute
)

// commitScript writes the profile only while the caller still owns the
// reservation, then frees it. Keys: reserve, profile. Args: token, payload.
var commitScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('SET', KEYS[2], ARGV[2])
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// releaseScript frees the reservation only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Redis persists profiles in Redis and implements reservations as SETNX
// tokens with a TTL, so a crashed process cannot block an employee forever.
type Redis struct {
	client     *redis.Client
	reserveTTL time.Duration
}

type RedisOption func(*Redis)

// WithReserveTTL overrides the reservation expiry, mainly for tests.
func WithReserveTTL(ttl time.Duration) RedisOption {
	return func(s *Redis) {
		s.reserveTTL = ttl
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{client: client, reserveTTL: defaultReserveTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Redis) Get(ctx context.Context, id string) (models.EnrichedProfile, error) {
	raw, err := s.client.Get(ctx, redisProfilePrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.EnrichedProfile{}, sentinel.ErrNotFound
		}
		return models.EnrichedProfile{}, fmt.Errorf("get profile %q: %w", id, err)
	}

	var profile models.EnrichedProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return models.EnrichedProfile{}, fmt.Errorf("decode profile %q: %w", id, err)
	}
	return profile, nil
}

func (s *Redis) Reserve(ctx context.Context, id string) (Reservation, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, redisReservePrefix+id, token, s.reserveTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve %q: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("reserve %q: %w", id, sentinel.ErrConflict)
	}
	return &redisReservation{store: s, id: id, token: token}, nil
}

type redisReservation struct {
	store *Redis
	id    string
	token string
	done  bool
}

func (r *redisReservation) Commit(ctx context.Context, profile models.EnrichedProfile) error {
	if r.done {
		return fmt.Errorf("commit %q: %w", r.id, sentinel.ErrInvalidState)
	}

	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile %q: %w", r.id, err)
	}

	keys := []string{redisReservePrefix + r.id, redisProfilePrefix + r.id}
	n, err := commitScript.Run(ctx, r.store.client, keys, r.token, payload).Int()
	if err != nil {
		return fmt.Errorf("commit %q: %w", r.id, err)
	}
	if n == 0 {
		// Reservation expired or was never ours anymore; the write did not happen.
		return fmt.Errorf("commit %q: reservation lost: %w", r.id, sentinel.ErrInvalidState)
	}
	r.done = true
	return nil
}

func (r *redisReservation) Release() {
	if r.done {
		return
	}
	r.done = true
	keys := []string{redisReservePrefix + r.id}
	// Best effort: the TTL reclaims the slot if Redis is unreachable here.
	_ = releaseScript.Run(context.Background(), r.store.client, keys, r.token).Err()
}
