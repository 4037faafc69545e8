// Package trace records pipeline step events for diagnostics and the
// scenario harness.
//
// The core pipelines stay stateless: recording is optional, hangs off a
// small Recorder interface, and the durable SQLite form exists for
// developer tooling only. Nothing in the purchase or listing contracts
// depends on trace state.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// Step outcome values.
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Event is one recorded pipeline step.
type Event struct {
	// Seq is the store-assigned monotonic sequence number. Zero until
	// recorded.
	Seq int64 `json:"seq"`

	// Run correlates all events of one pipeline execution.
	Run string `json:"run"`

	// Pipeline names the workflow ("listing", "purchase", "catalog").
	Pipeline string `json:"pipeline"`

	// Step names the step within the workflow ("validate", "mint", ...).
	Step string `json:"step"`

	// Status is StatusOK or StatusFail.
	Status string `json:"status"`

	// Detail carries a short human-readable note (an ID, an amount, or a
	// failure reason).
	Detail string `json:"detail,omitempty"`
}

// Recorder receives step events. Implementations must be safe for use
// from a single pipeline goroutine; the pipelines never record
// concurrently within one run.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Nop discards all events. Used when no recording is configured.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Event) error { return nil }

// TokenGenerator produces run tokens for pipeline correlation.
// Implemented by UUIDv7Tokens (production) and the fixed generator in
// internal/testutil (tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Tokens generates time-sortable UUIDv7 run tokens. Sortability by
// creation time keeps trace listings readable without a timestamp column.
//
// Stateless and safe for concurrent use.
type UUIDv7Tokens struct{}

// Generate returns a new hyphenated UUIDv7 string.
func (UUIDv7Tokens) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
