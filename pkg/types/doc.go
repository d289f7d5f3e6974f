// Package types defines the core data structures shared by the release graph tooling.
//
// This package contains:
//   - Trigger parameters supplied once per decision run
//   - Task nodes, their attributes and artifact manifests
//   - The queue wire format for task definitions
//   - The task graph and its validation
package types
