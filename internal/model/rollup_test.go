package model

import (
	"math"
	"testing"
	"time"
)

func completedTask(cost float64, tokens int64, durationMs int64, succeeded bool) TaskRecord {
	return TaskRecord{
		TaskID:      "t",
		CompletedAt: time.Now(),
		TotalCost:   cost,
		InputTokens: tokens,
		DurationMs:  durationMs,
		Succeeded:   succeeded,
	}
}

func TestRollupBucketFold(t *testing.T) {
	var b RollupBucket

	b = b.Fold(completedTask(0.10, 1000, 200, true))
	b = b.Fold(completedTask(0.30, 3000, 400, false))

	if b.TaskCount != 2 {
		t.Fatalf("TaskCount = %d, want 2", b.TaskCount)
	}
	if b.SuccessCount != 1 || b.FailureCount != 1 {
		t.Fatalf("success/failure = %d/%d, want 1/1", b.SuccessCount, b.FailureCount)
	}
	if math.Abs(b.TotalCost-0.40) > 1e-12 {
		t.Fatalf("TotalCost = %.4f, want 0.40", b.TotalCost)
	}
	if math.Abs(b.AvgCost-0.20) > 1e-12 {
		t.Fatalf("AvgCost = %.4f, want 0.20", b.AvgCost)
	}
	if b.TotalTokens != 4000 {
		t.Fatalf("TotalTokens = %d, want 4000", b.TotalTokens)
	}
	if b.AvgDurationMs != 300 {
		t.Fatalf("AvgDurationMs = %.0f, want 300", b.AvgDurationMs)
	}
	if b.SuccessRate() != 0.5 {
		t.Fatalf("SuccessRate = %.2f, want 0.5", b.SuccessRate())
	}
}

func TestRollupFoldedDoesNotMutateReceiver(t *testing.T) {
	r := Rollup{}

	r2 := r.Folded("gpt-4o", completedTask(0.05, 500, 100, true))
	if len(r) != 0 {
		t.Fatal("original rollup was mutated")
	}
	if r2["gpt-4o"].TaskCount != 1 {
		t.Fatalf("folded bucket TaskCount = %d, want 1", r2["gpt-4o"].TaskCount)
	}

	r3 := r2.Folded("gpt-4o", completedTask(0.05, 500, 100, true))
	if r2["gpt-4o"].TaskCount != 1 {
		t.Fatal("intermediate rollup was mutated by second fold")
	}
	if r3["gpt-4o"].TaskCount != 2 {
		t.Fatalf("second fold TaskCount = %d, want 2", r3["gpt-4o"].TaskCount)
	}
}

func TestHierarchyMetricsValidate(t *testing.T) {
	bad := 12.0
	good := 7.5

	if err := (HierarchyMetrics{Reusability: &bad}).Validate(); err == nil {
		t.Fatal("expected error for reusability > 10")
	}
	if err := (HierarchyMetrics{Complexity: &bad}).Validate(); err == nil {
		t.Fatal("expected error for complexity > 10")
	}
	if err := (HierarchyMetrics{Reusability: &good, Complexity: &good}).Validate(); err != nil {
		t.Fatalf("unexpected error for in-range scores: %v", err)
	}
	if err := (HierarchyMetrics{}).Validate(); err != nil {
		t.Fatalf("unexpected error for empty metrics: %v", err)
	}
}
