// Package service orchestrates enrichment: reserve the employee's store slot,
// resolve the identity against the directory, merge, commit. It owns the
// retry and error classification policy for the whole pipeline.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roster/internal/idp"
	"roster/internal/onboarding/events"
	"roster/internal/onboarding/metrics"
	"roster/internal/onboarding/models"
	"roster/internal/onboarding/store"
	"roster/internal/platform/middleware"
	"roster/pkg/domainerrors"
	"roster/pkg/platform/retry"
	"roster/pkg/platform/sentinel"
)

// ProfileStore is the slice of the store this service needs.
type ProfileStore interface {
	Get(ctx context.Context, id string) (models.EnrichedProfile, error)
	Reserve(ctx context.Context, id string) (store.Reservation, error)
}

// IdentityResolver resolves one lookup key to one identity record.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, key string) (*models.IdentityRecord, error)
}

// EventPublisher receives onboarding outcomes.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// LookupKeyFunc selects which HR field is used to search the directory. Both
// strategies are valid; the right one is a deployment decision, so it is
// injected at construction time.
type LookupKeyFunc func(models.HRRecord) string

var (
	LookupByEmail      LookupKeyFunc = func(rec models.HRRecord) string { return rec.Email }
	LookupByEmployeeID LookupKeyFunc = func(rec models.HRRecord) string { return rec.EmployeeID }
)

// Service drives the enrichment pipeline.
type Service struct {
	store     ProfileStore
	resolver  IdentityResolver
	lookupKey LookupKeyFunc
	retry     retry.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher EventPublisher
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithLookupKey(fn LookupKeyFunc) Option {
	return func(s *Service) {
		s.lookupKey = fn
	}
}

// WithRetry overrides the lookup retry timing. Which errors are retried stays
// with the directory error taxonomy and is not configurable.
func WithRetry(cfg retry.Config) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// New constructs a Service. Lookups default to the email strategy with the
// standard retry policy.
func New(profiles ProfileStore, resolver IdentityResolver, opts ...Option) *Service {
	s := &Service{
		store:     profiles,
		resolver:  resolver,
		lookupKey: LookupByEmail,
		retry:     retry.Default(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("roster/onboarding"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.Retryable = idp.IsRetryable
	return s
}

// OnboardUser runs the enrichment pipeline once for one HR record. The
// reservation taken for the employee is released on every exit path, so a
// failed attempt never blocks a later one.
func (s *Service) OnboardUser(ctx context.Context, rec models.HRRecord) error {
	if strings.TrimSpace(rec.EmployeeID) == "" {
		return domainerrors.New(domainerrors.CodeValidation, "employee_id is required")
	}
	key := s.lookupKey(rec)
	if key == "" {
		return domainerrors.New(domainerrors.CodeValidation, "lookup key is empty for this record")
	}

	ctx, span := s.tracer.Start(ctx, "onboarding.onboard_user",
		trace.WithAttributes(attribute.String("employee.id", rec.EmployeeID)))
	defer span.End()

	res, err := s.store.Reserve(ctx, rec.EmployeeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.observeOutcome("conflict")
			return domainerrors.New(domainerrors.CodeConflict,
				"an enrichment for this employee is already in progress")
		}
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to reserve enrichment slot")
	}
	defer res.Release()

	identity, err := s.resolveIdentity(ctx, key)
	if err != nil {
		return s.failOnboarding(ctx, rec.EmployeeID, span, err)
	}

	profile := models.Merge(rec, *identity)
	if err := res.Commit(ctx, profile); err != nil {
		return s.failOnboarding(ctx, rec.EmployeeID, span,
			domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to commit enriched profile"))
	}

	s.logger.InfoContext(ctx, "employee onboarded",
		"employee_id", rec.EmployeeID,
		"groups", len(profile.Groups),
		"applications", len(profile.Applications),
		"request_id", middleware.GetRequestID(ctx))
	s.observeOutcome("success")
	s.emit(ctx, events.Event{EmployeeID: rec.EmployeeID, Action: events.ActionUserOnboarded})
	return nil
}

// GetEnrichedProfile reads the store directly, bypassing the enrichment
// state machine.
func (s *Service) GetEnrichedProfile(ctx context.Context, id string) (models.EnrichedProfile, error) {
	if strings.TrimSpace(id) == "" {
		return models.EnrichedProfile{}, domainerrors.New(domainerrors.CodeValidation, "employee id is required")
	}

	profile, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.EnrichedProfile{}, domainerrors.New(domainerrors.CodeNotFound, "enriched profile not found")
		}
		return models.EnrichedProfile{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load profile")
	}
	return profile, nil
}

func (s *Service) resolveIdentity(ctx context.Context, key string) (*models.IdentityRecord, error) {
	ctx, span := s.tracer.Start(ctx, "onboarding.resolve_identity")
	defer span.End()

	start := time.Now()
	var identity *models.IdentityRecord
	attempt := 0
	err := retry.Do(ctx, s.retry, func() error {
		attempt++
		if attempt > 1 {
			s.countRetry()
			s.logger.DebugContext(ctx, "retrying directory lookup", "attempt", attempt)
		}
		record, err := s.resolver.ResolveIdentity(ctx, key)
		if err != nil {
			return err
		}
		identity = record
		return nil
	})
	if s.metrics != nil {
		s.metrics.LookupDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return identity, nil
}

// failOnboarding translates a pipeline failure into the domain taxonomy and
// records it. Transport details never cross the boundary raw.
func (s *Service) failOnboarding(ctx context.Context, employeeID string, span trace.Span, err error) error {
	derr := s.translateFailure(ctx, err)
	code := domainerrors.CodeOf(derr)

	switch code {
	case domainerrors.CodeNotFound:
		s.logger.WarnContext(ctx, "no directory identity for employee",
			"employee_id", employeeID, "request_id", middleware.GetRequestID(ctx))
		s.observeOutcome("identity_not_found")
	case domainerrors.CodeCancelled:
		s.logger.InfoContext(ctx, "onboarding cancelled",
			"employee_id", employeeID, "request_id", middleware.GetRequestID(ctx))
		s.observeOutcome("cancelled")
	default:
		s.logger.ErrorContext(ctx, "onboarding failed",
			"employee_id", employeeID, "error", err, "request_id", middleware.GetRequestID(ctx))
		s.observeOutcome("lookup_failed")
	}

	span.RecordError(err)
	s.emit(ctx, events.Event{
		EmployeeID: employeeID,
		Action:     events.ActionOnboardingFailed,
		Reason:     string(code),
	})
	return derr
}

func (s *Service) translateFailure(ctx context.Context, err error) error {
	var derr *domainerrors.Error
	switch {
	case errors.As(err, &derr):
		return err
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return domainerrors.Wrap(err, domainerrors.CodeCancelled, "onboarding was cancelled")
	case errors.Is(err, sentinel.ErrNotFound):
		return domainerrors.Wrap(err, domainerrors.CodeNotFound, "no directory identity matches this employee")
	default:
		return domainerrors.Wrap(err, domainerrors.CodeUnavailable, "identity lookup failed")
	}
}

func (s *Service) observeOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOutcome(outcome)
	}
}

func (s *Service) countRetry() {
	if s.metrics != nil {
		s.metrics.LookupRetries.Inc()
	}
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish onboarding event",
			"employee_id", event.EmployeeID, "error", err)
	}
}
