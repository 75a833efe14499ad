package validation

import (
	"errors"
	"testing"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ValidateBundle Tests
// =============================================================================

func completeBundle() domain.ConfigBundle {
	return domain.ConfigBundle{
		Environment: "production",
		Values: map[string]string{
			"API_URL":        "https://api.example.com",
			"AUTH_TENANT_ID": "tenant",
			"AUTH_CLIENT_ID": "client",
		},
	}
}

func TestValidateBundle_AllPresent(t *testing.T) {
	err := ValidateBundle(completeBundle(), DefaultRequiredKeys)
	assert.NoError(t, err)
}

func TestValidateBundle_MissingKey(t *testing.T) {
	bundle := completeBundle()
	delete(bundle.Values, "AUTH_TENANT_ID")

	err := ValidateBundle(bundle, DefaultRequiredKeys)
	require.Error(t, err)

	var missing *domain.MissingConfigError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "AUTH_TENANT_ID", missing.Item)
	assert.Equal(t, "production", missing.Environment)
	assert.False(t, missing.File)
}

func TestValidateBundle_FailFastReportsFirstInOrder(t *testing.T) {
	bundle := domain.ConfigBundle{Environment: "staging", Values: map[string]string{}}

	err := ValidateBundle(bundle, []string{"AUTH_CLIENT_ID", "API_URL"})

	var missing *domain.MissingConfigError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "AUTH_CLIENT_ID", missing.Item)
}

func TestValidateBundle_EmptyValueCountsAsPresent(t *testing.T) {
	bundle := completeBundle()
	bundle.Values["API_URL"] = ""

	assert.NoError(t, ValidateBundle(bundle, DefaultRequiredKeys))
}

func TestValidateBundle_NoRequiredKeys(t *testing.T) {
	assert.NoError(t, ValidateBundle(domain.ConfigBundle{}, nil))
}

// =============================================================================
// NormalizeKeys Tests
// =============================================================================

func TestNormalizeKeys(t *testing.T) {
	got := NormalizeKeys([]string{" API_URL", "", "API_URL", "AUTH_CLIENT_ID", "  "})
	assert.Equal(t, []string{"API_URL", "AUTH_CLIENT_ID"}, got)
}

func TestNormalizeKeys_Empty(t *testing.T) {
	assert.Empty(t, NormalizeKeys(nil))
}
