// Package core defines the shared language of the latchgrid system.
//
// This package contains:
//   - LATCH axes, visual planes and axis mappings
//   - The opaque Record consumed from data sources
//   - The Janus density state
//   - Configuration error types
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
