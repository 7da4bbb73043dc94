// Package model defines domain value types for genmeter task and session
// accounting.
package model

import (
	"fmt"
	"time"
)

// TaskRecord represents one priced unit of work: a single call to an external
// model with a start/complete lifecycle. Records are created pending, complete
// exactly once, and are retained for the life of their session.
type TaskRecord struct {
	TaskID   string
	Model    string
	Category string
	Level    string // classification level ("atom", "molecule", ...), empty when unclassified

	StartedAt   time.Time
	CompletedAt time.Time // zero until completed
	DurationMs  int64

	InputTokens  int64
	OutputTokens int64
	InputCost    float64
	OutputCost   float64
	TotalCost    float64

	Succeeded    bool
	ErrorMessage string

	// Substituted reports that cost was computed with fallback pricing
	// because the model identifier was unrecognized.
	Substituted bool

	Reusability *float64 // 0-10
	Complexity  *float64 // 0-10
	DependsOn   []string
	Artifacts   []string
}

// Completed reports whether the task has transitioned out of pending.
func (t TaskRecord) Completed() bool {
	return !t.CompletedAt.IsZero()
}

// TotalTokens returns input + output tokens.
func (t TaskRecord) TotalTokens() int64 {
	return t.InputTokens + t.OutputTokens
}

// HierarchyMetrics is the optional per-completion payload describing what a
// classified task produced. Validated at the completion boundary so malformed
// inputs fail fast instead of poisoning aggregates.
type HierarchyMetrics struct {
	Reusability *float64
	Complexity  *float64
	DependsOn   []string
	Artifacts   []string
}

// Validate checks score ranges. Scores are 0-10 inclusive.
func (m HierarchyMetrics) Validate() error {
	if m.Reusability != nil && (*m.Reusability < 0 || *m.Reusability > 10) {
		return fmt.Errorf("reusability score %.2f out of range [0,10]", *m.Reusability)
	}
	if m.Complexity != nil && (*m.Complexity < 0 || *m.Complexity > 10) {
		return fmt.Errorf("complexity score %.2f out of range [0,10]", *m.Complexity)
	}
	return nil
}
