// Package validation provides pure checks over environment configuration.
//
// All functions are pure (no I/O, no side effects). The shell loads the
// per-environment bundle from disk and hands it here as a value.
//
// # Functions
//
//   - ValidateBundle: fail on the first required key absent from a bundle
//   - NormalizeKeys: clean a configured required-key list
//
// # Usage
//
//	if err := validation.ValidateBundle(bundle, required); err != nil {
//	    // err is a *domain.MissingConfigError naming the first missing key
//	}
package validation
