// Package deployment provides pure functions for cut-over planning.
//
// This package contains the functional core logic that turns a service slot
// and a build number into concrete names, image references and commands.
// All functions are pure (no I/O, no side effects) and comply with ADR-002
// "Values as Boundaries".
//
// # Functions
//
//   - Naming: consistent resource names (ContainerName, Repository, ImageRef, HealthURL)
//   - Templates: ${VAR} placeholder expansion for toolchain and reclaim commands (ExpandArgs)
//
// # Usage
//
// The imperative shell (internal/shell/builder, internal/shell/cutover) uses
// these pure functions, then executes against the supervisor.
//
//	image := deployment.ImageRef(repo, domain.BuildTag(42))
//	args := deployment.ExpandArgs(words, map[string]string{"IMAGE": image})
package deployment
