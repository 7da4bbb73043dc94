package daemon

import (
	"math"
	"testing"
	"time"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pipeline"
)

func TestDiffSnapshots(t *testing.T) {
	prev := Snapshot{
		Sessions:       10,
		Tasks:          100,
		CompletedTasks: 90,
		Tokens:         1_000_000,
		TotalCostUSD:   10.5,
	}
	curr := Snapshot{
		Sessions:       12,
		Tasks:          112,
		CompletedTasks: 106,
		Tokens:         1_250_000,
		TotalCostUSD:   13.1,
	}

	delta := diffSnapshots(prev, curr)
	if delta.Sessions != 2 {
		t.Fatalf("Sessions delta = %d, want 2", delta.Sessions)
	}
	if delta.Tasks != 12 {
		t.Fatalf("Tasks delta = %d, want 12", delta.Tasks)
	}
	if delta.CompletedTasks != 16 {
		t.Fatalf("CompletedTasks delta = %d, want 16", delta.CompletedTasks)
	}
	if delta.Tokens != 250_000 {
		t.Fatalf("Tokens delta = %d, want 250000", delta.Tokens)
	}
	if math.Abs(delta.TotalCostUSD-2.6) > 1e-9 {
		t.Fatalf("Cost delta = %.2f, want 2.60", delta.TotalCostUSD)
	}
	if delta.isZero() {
		t.Fatal("delta unexpectedly reported as zero")
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{
		DataDir:      ".",
		Interval:     10 * time.Second,
		EventsBuffer: 2,
	})

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestCollectWarnings(t *testing.T) {
	s := New(Config{
		DataDir:           ".",
		MaxSessionCostUSD: 1.00,
	})

	sessions := []pipeline.SessionRecord{
		{Summary: analytics.Summary{SessionID: "cheap", TotalCost: 0.10}},
		{Summary: analytics.Summary{SessionID: "pricey", Project: "storefront", TotalCost: 1.50}},
	}

	warnings := s.collectWarnings(sessions)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d sessions, want 1", len(warnings))
	}
	if warnings[0].SessionID != "pricey" {
		t.Fatalf("warned session = %s, want pricey", warnings[0].SessionID)
	}
	if warnings[0].Warnings[0].Severity != analytics.SeverityCritical {
		t.Fatalf("severity = %s, want critical", warnings[0].Warnings[0].Severity)
	}
}

func TestCollectWarningsDisabledWithoutLimits(t *testing.T) {
	s := New(Config{DataDir: "."})
	sessions := []pipeline.SessionRecord{
		{Summary: analytics.Summary{SessionID: "any", TotalCost: 100}, Tasks: []model.TaskRecord{}},
	}
	if got := s.collectWarnings(sessions); got != nil {
		t.Fatalf("warnings = %v, want nil when no limits set", got)
	}
}
