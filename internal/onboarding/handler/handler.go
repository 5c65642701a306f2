// Package handler exposes the onboarding pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"roster/internal/onboarding/models"
	"roster/internal/platform/middleware"
	"roster/pkg/domainerrors"
	"roster/pkg/platform/httputil"
)

// defaultBatchConcurrency bounds how many batch records enrich in parallel.
const defaultBatchConcurrency = 8

// maxBatchSize rejects batches too large to serve in one request.
const maxBatchSize = 500

// OnboardingService is the slice of the orchestrator the handlers call.
type OnboardingService interface {
	OnboardUser(ctx context.Context, rec models.HRRecord) error
	GetEnrichedProfile(ctx context.Context, id string) (models.EnrichedProfile, error)
}

type Handler struct {
	svc    OnboardingService
	logger *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func New(svc OnboardingService, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the onboarding routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/hr_user", h.OnboardUser)
	r.Post("/hr_users", h.OnboardBatch)
	r.Get("/user/{userID}", h.GetUser)
}

// OnboardUser accepts one HR record and runs the enrichment pipeline for it.
func (h *Handler) OnboardUser(w http.ResponseWriter, r *http.Request) {
	var rec models.HRRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httputil.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeValidation, "invalid request body"))
		return
	}

	if err := h.svc.OnboardUser(r.Context(), rec); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "User onboarded successfully.",
	})
}

// BatchResult reports the outcome for one record of a batch request.
type BatchResult struct {
	EmployeeID string `json:"employee_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// BatchResponse summarizes a whole batch run.
type BatchResponse struct {
	Onboarded int           `json:"onboarded"`
	Failed    int           `json:"failed"`
	Results   []BatchResult `json:"results"`
}

// OnboardBatch enriches a list of HR records concurrently. Each record
// succeeds or fails on its own; the response carries one result per input in
// input order.
func (h *Handler) OnboardBatch(w http.ResponseWriter, r *http.Request) {
	var recs []models.HRRecord
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		httputil.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeValidation, "invalid request body"))
		return
	}
	if len(recs) == 0 {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeValidation, "batch is empty"))
		return
	}
	if len(recs) > maxBatchSize {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeValidation, "batch exceeds maximum size"))
		return
	}

	results := make([]BatchResult, len(recs))
	var mu sync.Mutex
	onboarded, failed := 0, 0

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(defaultBatchConcurrency)
	for i, rec := range recs {
		g.Go(func() error {
			result := BatchResult{EmployeeID: rec.EmployeeID, Status: "onboarded"}
			if err := h.svc.OnboardUser(ctx, rec); err != nil {
				result.Status = "failed"
				result.Error = string(domainerrors.CodeOf(err))
			}
			results[i] = result

			mu.Lock()
			if result.Status == "onboarded" {
				onboarded++
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors, so this only waits for completion.
	_ = g.Wait()

	status := http.StatusOK
	if failed > 0 {
		status = http.StatusMultiStatus
	}
	h.logger.InfoContext(r.Context(), "batch onboarding finished",
		"total", len(recs), "onboarded", onboarded, "failed", failed,
		"request_id", middleware.GetRequestID(r.Context()))
	httputil.WriteJSON(w, status, BatchResponse{Onboarded: onboarded, Failed: failed, Results: results})
}

// GetUser returns the enriched profile for one employee.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")

	profile, err := h.svc.GetEnrichedProfile(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}
