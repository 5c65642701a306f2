package idp

import (
	"errors"
	"fmt"
)

// Category normalizes directory lookup failures so the onboarding service can
// apply a single retry policy without inspecting transport details.
type Category string

const (
	// CategoryTimeout indicates the directory took too long to respond.
	CategoryTimeout Category = "timeout"

	// CategoryOutage indicates the directory is unavailable (5xx, connection refused).
	CategoryOutage Category = "outage"

	// CategoryRateLimited indicates too many requests.
	CategoryRateLimited Category = "rate_limited"

	// CategoryAuthentication indicates credential or permission issues.
	CategoryAuthentication Category = "authentication"

	// CategoryBadRequest indicates the directory rejected the request shape.
	CategoryBadRequest Category = "bad_request"

	// CategoryBadData indicates the directory returned a payload this client
	// cannot decode.
	CategoryBadData Category = "bad_data"

	// CategoryInternal indicates an unexpected internal error.
	CategoryInternal Category = "internal"
)

// LookupError wraps a directory failure with its normalized category.
type LookupError struct {
	Category   Category
	Op         string
	Underlying error
	Retryable  bool
}

func (e *LookupError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("idp %s [%s]: %v", e.Op, e.Category, e.Underlying)
	}
	return fmt.Sprintf("idp %s [%s]", e.Op, e.Category)
}

func (e *LookupError) Unwrap() error {
	return e.Underlying
}

func newLookupError(category Category, op string, underlying error) *LookupError {
	retryable := category == CategoryTimeout ||
		category == CategoryOutage ||
		category == CategoryRateLimited

	return &LookupError{
		Category:   category,
		Op:         op,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable reports whether an error is worth another attempt.
func IsRetryable(err error) bool {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// GetCategory extracts the category from an error.
func GetCategory(err error) Category {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Category
	}
	return CategoryInternal
}
