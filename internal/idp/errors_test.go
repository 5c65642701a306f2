package idp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupError_RetryabilityFollowsCategory(t *testing.T) {
	retryable := []Category{CategoryTimeout, CategoryOutage, CategoryRateLimited}
	for _, cat := range retryable {
		assert.True(t, newLookupError(cat, "search", nil).Retryable, string(cat))
	}

	fatal := []Category{CategoryAuthentication, CategoryBadRequest, CategoryBadData, CategoryInternal}
	for _, cat := range fatal {
		assert.False(t, newLookupError(cat, "search", nil).Retryable, string(cat))
	}
}

func TestGetCategory_SurvivesWrapping(t *testing.T) {
	err := newLookupError(CategoryOutage, "groups", errors.New("connection reset"))
	wrapped := fmt.Errorf("resolve identity: %w", err)

	assert.Equal(t, CategoryOutage, GetCategory(wrapped))
	assert.True(t, IsRetryable(wrapped))
}

func TestGetCategory_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, CategoryInternal, GetCategory(errors.New("mystery")))
	assert.False(t, IsRetryable(errors.New("mystery")))
}
