package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"roster/internal/onboarding/handler"
	"roster/internal/onboarding/models"
	"roster/pkg/domainerrors"
)

// fakeService returns canned results keyed by employee id.
type fakeService struct {
	mu          sync.Mutex
	onboardErrs map[string]error
	profiles    map[string]models.EnrichedProfile
	calls       []string
}

func newFakeService() *fakeService {
	return &fakeService{
		onboardErrs: make(map[string]error),
		profiles:    make(map[string]models.EnrichedProfile),
	}
}

func (f *fakeService) OnboardUser(_ context.Context, rec models.HRRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rec.EmployeeID)
	return f.onboardErrs[rec.EmployeeID]
}

func (f *fakeService) GetEnrichedProfile(_ context.Context, id string) (models.EnrichedProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[id]
	if !ok {
		return models.EnrichedProfile{}, domainerrors.New(domainerrors.CodeNotFound, "enriched profile not found")
	}
	return profile, nil
}

type HandlerSuite struct {
	suite.Suite
	svc    *fakeService
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.svc = newFakeService()
	s.router = chi.NewRouter()
	handler.New(s.svc, handler.WithLogger(slog.New(slog.DiscardHandler))).Register(s.router)
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestOnboardUser_Success() {
	rec := s.do(http.MethodPost, "/hr_user", models.HRRecord{EmployeeID: "E-1", Email: "ada@example.com"})

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "User onboarded successfully.")
	s.Equal([]string{"E-1"}, s.svc.calls)
}

func (s *HandlerSuite) TestOnboardUser_InvalidBody() {
	rec := s.do(http.MethodPost, "/hr_user", "{not json")

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "validation_error")
	s.Empty(s.svc.calls)
}

func (s *HandlerSuite) TestOnboardUser_ErrorCodes() {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"conflict", domainerrors.New(domainerrors.CodeConflict, "in progress"), http.StatusConflict},
		{"not found", domainerrors.New(domainerrors.CodeNotFound, "no identity"), http.StatusNotFound},
		{"unavailable", domainerrors.New(domainerrors.CodeUnavailable, "directory down"), http.StatusBadGateway},
		{"cancelled", domainerrors.New(domainerrors.CodeCancelled, "gone"), http.StatusRequestTimeout},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.svc.onboardErrs["E-1"] = tc.err
			rec := s.do(http.MethodPost, "/hr_user", models.HRRecord{EmployeeID: "E-1", Email: "a@b.c"})
			s.Equal(tc.want, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestGetUser_Success() {
	s.svc.profiles["E-1"] = models.EnrichedProfile{
		ID: "E-1", Name: "Ada Lovelace", Email: "ada@example.com", Onboarded: true,
	}

	rec := s.do(http.MethodGet, "/user/E-1", nil)
	s.Equal(http.StatusOK, rec.Code)

	var profile models.EnrichedProfile
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &profile))
	s.Equal("Ada Lovelace", profile.Name)
	s.True(profile.Onboarded)
}

func (s *HandlerSuite) TestGetUser_NotFound() {
	rec := s.do(http.MethodGet, "/user/missing", nil)

	s.Equal(http.StatusNotFound, rec.Code)
	s.Contains(rec.Body.String(), "not_found")
}

func (s *HandlerSuite) TestOnboardBatch_Mixed() {
	s.svc.onboardErrs["E-2"] = domainerrors.New(domainerrors.CodeNotFound, "no identity")

	rec := s.do(http.MethodPost, "/hr_users", []models.HRRecord{
		{EmployeeID: "E-1", Email: "a@b.c"},
		{EmployeeID: "E-2", Email: "b@b.c"},
		{EmployeeID: "E-3", Email: "c@b.c"},
	})
	s.Equal(http.StatusMultiStatus, rec.Code)

	var resp handler.BatchResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(2, resp.Onboarded)
	s.Equal(1, resp.Failed)
	s.Require().Len(resp.Results, 3)

	// Results stay in input order regardless of completion order.
	s.Equal("E-1", resp.Results[0].EmployeeID)
	s.Equal("E-2", resp.Results[1].EmployeeID)
	s.Equal("E-3", resp.Results[2].EmployeeID)
	s.Equal("failed", resp.Results[1].Status)
	s.Equal("not_found", resp.Results[1].Error)
	s.Equal("onboarded", resp.Results[0].Status)
}

func (s *HandlerSuite) TestOnboardBatch_AllSucceed() {
	rec := s.do(http.MethodPost, "/hr_users", []models.HRRecord{
		{EmployeeID: "E-1", Email: "a@b.c"},
		{EmployeeID: "E-2", Email: "b@b.c"},
	})
	s.Equal(http.StatusOK, rec.Code)

	var resp handler.BatchResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(2, resp.Onboarded)
	s.Equal(0, resp.Failed)
}

func (s *HandlerSuite) TestOnboardBatch_Empty() {
	rec := s.do(http.MethodPost, "/hr_users", []models.HRRecord{})

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "validation_error")
}

func (s *HandlerSuite) TestOnboardBatch_InvalidBody() {
	rec := s.do(http.MethodPost, "/hr_users", strings.Repeat("{", 3))

	s.Equal(http.StatusBadRequest, rec.Code)
}
