package service_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"roster/internal/idp"
	"roster/internal/onboarding/events"
	"roster/internal/onboarding/models"
	"roster/internal/onboarding/service"
	"roster/internal/onboarding/store"
	"roster/pkg/domainerrors"
	"roster/pkg/platform/retry"
	"roster/pkg/platform/sentinel"
)

// fakeResolver plays back a scripted sequence of results, one per call.
type fakeResolver struct {
	mu      sync.Mutex
	script  []resolveResult
	calls   int
	lastKey string
	// block, when set, is closed by the test to let a pending call finish.
	block chan struct{}
	// started is signalled once per call before blocking.
	started chan struct{}
}

type resolveResult struct {
	record *models.IdentityRecord
	err    error
}

func (f *fakeResolver) ResolveIdentity(ctx context.Context, key string) (*models.IdentityRecord, error) {
	f.mu.Lock()
	f.calls++
	f.lastKey = key
	idx := f.calls - 1
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	result := f.script[idx]
	if result.err != nil {
		return nil, result.err
	}
	rec := *result.record
	return &rec, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeResolver) lastLookupKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey
}

func transientErr() error {
	return &idp.LookupError{
		Category:   idp.CategoryTimeout,
		Op:         "search users",
		Underlying: errors.New("dial tcp: i/o timeout"),
		Retryable:  true,
	}
}

func fatalErr() error {
	return &idp.LookupError{
		Category:   idp.CategoryAuthentication,
		Op:         "search users",
		Underlying: errors.New("401 Unauthorized"),
		Retryable:  false,
	}
}

func notFoundErr() error {
	return &idp.LookupError{
		Category:   idp.CategoryBadData,
		Op:         "search users",
		Underlying: fmt.Errorf("no directory match: %w", sentinel.ErrNotFound),
		Retryable:  false,
	}
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Factor:      2.0,
	}
}

type ServiceSuite struct {
	suite.Suite
	profiles  *store.InMemory
	eventLog  *events.InMemoryStore
	publisher *events.Publisher
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.profiles = store.NewInMemory()
	s.eventLog = events.NewInMemoryStore()
	s.publisher = events.NewPublisher(s.eventLog)
}

func (s *ServiceSuite) newService(resolver service.IdentityResolver, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithLogger(slog.New(slog.DiscardHandler)),
		service.WithRetry(fastRetry()),
		service.WithPublisher(s.publisher),
	}
	return service.New(s.profiles, resolver, append(base, opts...)...)
}

func adaRecord() models.HRRecord {
	return models.HRRecord{
		EmployeeID: "E-1001",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Title:      "Engineer",
		Department: "R&D",
		StartDate:  "2024-03-01",
	}
}

func adaIdentity() *models.IdentityRecord {
	return &models.IdentityRecord{
		Profile:      map[string]any{"login": "ada@example.com"},
		Groups:       []string{"Everyone", "Engineering"},
		Applications: []string{"Google Workspace", "Slack", "Jira"},
	}
}

func (s *ServiceSuite) TestOnboardUser_HappyPath() {
	resolver := &fakeResolver{script: []resolveResult{{record: adaIdentity()}}}
	svc := s.newService(resolver)

	err := svc.OnboardUser(context.Background(), adaRecord())
	s.Require().NoError(err)
	s.Equal(1, resolver.callCount())
	s.Equal("ada@example.com", resolver.lastLookupKey())

	profile, err := svc.GetEnrichedProfile(context.Background(), "E-1001")
	s.Require().NoError(err)
	s.Equal("E-1001", profile.ID)
	s.Equal("Ada Lovelace", profile.Name)
	s.Equal("ada@example.com", profile.Email)
	s.Equal("Engineer", profile.Title)
	s.Equal("R&D", profile.Department)
	s.Equal("2024-03-01", profile.StartDate)
	s.Equal([]string{"Everyone", "Engineering"}, profile.Groups)
	s.Equal([]string{"Google Workspace", "Slack", "Jira"}, profile.Applications)
	s.True(profile.Onboarded)

	log, err := s.publisher.List(context.Background(), "E-1001")
	s.Require().NoError(err)
	s.Require().Len(log, 1)
	s.Equal(events.ActionUserOnboarded, log[0].Action)
}

func (s *ServiceSuite) TestOnboardUser_IdentityNotFound() {
	resolver := &fakeResolver{script: []resolveResult{{err: notFoundErr()}}}
	svc := s.newService(resolver)

	err := svc.OnboardUser(context.Background(), adaRecord())
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeNotFound))
	s.Equal(1, resolver.callCount(), "a definitive miss must not be retried")

	_, err = svc.GetEnrichedProfile(context.Background(), "E-1001")
	s.True(domainerrors.HasCode(err, domainerrors.CodeNotFound), "store must stay empty")

	log, err := s.publisher.List(context.Background(), "E-1001")
	s.Require().NoError(err)
	s.Require().Len(log, 1)
	s.Equal(events.ActionOnboardingFailed, log[0].Action)
	s.Equal("not_found", log[0].Reason)
}

func (s *ServiceSuite) TestOnboardUser_TransientThenSuccess() {
	resolver := &fakeResolver{script: []resolveResult{
		{err: transientErr()},
		{err: transientErr()},
		{record: adaIdentity()},
	}}
	svc := s.newService(resolver)

	err := svc.OnboardUser(context.Background(), adaRecord())
	s.Require().NoError(err)
	s.Equal(3, resolver.callCount())

	profile, err := svc.GetEnrichedProfile(context.Background(), "E-1001")
	s.Require().NoError(err)
	s.True(profile.Onboarded)
}

func (s *ServiceSuite) TestOnboardUser_RetryBudgetExhausted() {
	resolver := &fakeResolver{script: []resolveResult{{err: transientErr()}}}
	svc := s.newService(resolver)

	err := svc.OnboardUser(context.Background(), adaRecord())
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeUnavailable))
	s.Equal(3, resolver.callCount(), "attempts must stop at the configured budget")
}

func (s *ServiceSuite) TestOnboardUser_FatalErrorNotRetried() {
	resolver := &fakeResolver{script: []resolveResult{{err: fatalErr()}}}
	svc := s.newService(resolver)

	err := svc.OnboardUser(context.Background(), adaRecord())
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeUnavailable))
	s.Equal(1, resolver.callCount())
}

func (s *ServiceSuite) TestOnboardUser_ConcurrentSameEmployee() {
	resolver := &fakeResolver{
		script:  []resolveResult{{record: adaIdentity()}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc := s.newService(resolver)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- svc.OnboardUser(context.Background(), adaRecord())
	}()

	// Wait until the first enrichment holds the reservation mid-lookup.
	<-resolver.started

	err := svc.OnboardUser(context.Background(), adaRecord())
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeConflict))

	close(resolver.block)
	s.Require().NoError(<-firstDone)

	profile, err := svc.GetEnrichedProfile(context.Background(), "E-1001")
	s.Require().NoError(err)
	s.True(profile.Onboarded)
}

func (s *ServiceSuite) TestOnboardUser_ReservationReleasedAfterFailure() {
	resolver := &fakeResolver{script: []resolveResult{
		{err: notFoundErr()},
		{record: adaIdentity()},
	}}
	svc := s.newService(resolver)

	err := svc.OnboardUser(context.Background(), adaRecord())
	s.True(domainerrors.HasCode(err, domainerrors.CodeNotFound))

	// The failed run must not leave the slot reserved.
	s.Require().NoError(svc.OnboardUser(context.Background(), adaRecord()))
}

func (s *ServiceSuite) TestOnboardUser_Cancelled() {
	resolver := &fakeResolver{
		script:  []resolveResult{{record: adaIdentity()}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc := s.newService(resolver)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.OnboardUser(ctx, adaRecord())
	}()

	<-resolver.started
	cancel()

	err := <-done
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeCancelled))

	_, err = svc.GetEnrichedProfile(context.Background(), "E-1001")
	s.True(domainerrors.HasCode(err, domainerrors.CodeNotFound))
}

func (s *ServiceSuite) TestOnboardUser_LookupKeyStrategy() {
	resolver := &fakeResolver{script: []resolveResult{{record: adaIdentity()}}}
	svc := s.newService(resolver, service.WithLookupKey(service.LookupByEmployeeID))

	s.Require().NoError(svc.OnboardUser(context.Background(), adaRecord()))
	s.Equal("E-1001", resolver.lastLookupKey())
}

func (s *ServiceSuite) TestOnboardUser_Validation() {
	resolver := &fakeResolver{script: []resolveResult{{record: adaIdentity()}}}
	svc := s.newService(resolver)

	s.Run("missing employee id", func() {
		rec := adaRecord()
		rec.EmployeeID = "  "
		err := svc.OnboardUser(context.Background(), rec)
		s.True(domainerrors.HasCode(err, domainerrors.CodeValidation))
	})

	s.Run("empty lookup key", func() {
		rec := adaRecord()
		rec.Email = ""
		err := svc.OnboardUser(context.Background(), rec)
		s.True(domainerrors.HasCode(err, domainerrors.CodeValidation))
	})

	s.Equal(0, resolver.callCount(), "invalid records must never reach the directory")
}

func (s *ServiceSuite) TestGetEnrichedProfile_Validation() {
	svc := s.newService(&fakeResolver{script: []resolveResult{{record: adaIdentity()}}})

	_, err := svc.GetEnrichedProfile(context.Background(), "")
	s.True(domainerrors.HasCode(err, domainerrors.CodeValidation))
}
