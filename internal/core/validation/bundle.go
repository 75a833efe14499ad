package validation

import (
	"strings"

	"github.com/artpar/cutover/internal/core/domain"
)

// =============================================================================
// Bundle Validation Functions
// =============================================================================

// DefaultRequiredKeys are the keys every environment bundle must carry.
var DefaultRequiredKeys = []string{"API_URL", "AUTH_TENANT_ID", "AUTH_CLIENT_ID"}

// ValidateBundle checks that every required key is present in the bundle.
// Keys are checked in the given order and the first absent key is reported.
// A key that is present with an empty value passes.
//
// Example:
//
//	bundle := domain.ConfigBundle{Environment: "prod", Values: map[string]string{"API_URL": "x"}}
//	err := ValidateBundle(bundle, []string{"API_URL", "AUTH_TENANT_ID"})
//	// err is *domain.MissingConfigError{Environment: "prod", Item: "AUTH_TENANT_ID"}
func ValidateBundle(bundle domain.ConfigBundle, required []string) error {
	for _, key := range required {
		if !bundle.Has(key) {
			return &domain.MissingConfigError{
				Environment: bundle.Environment,
				Item:        key,
			}
		}
	}
	return nil
}

// NormalizeKeys trims whitespace, drops blanks and removes duplicates while
// keeping the first occurrence's position.
//
// Example:
//
//	NormalizeKeys([]string{" API_URL", "", "API_URL", "AUTH_CLIENT_ID"})
//	// returns []string{"API_URL", "AUTH_CLIENT_ID"}
func NormalizeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
