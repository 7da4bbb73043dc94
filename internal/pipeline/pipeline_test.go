package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/source"
	"github.com/AngeloRai/genmeter/internal/store"
)

func record(project string, started time.Time, cost float64, completed int, successRate float64) SessionRecord {
	return SessionRecord{Summary: analytics.Summary{
		SessionID:      project + "-" + started.Format("150405"),
		Project:        project,
		StartedAt:      started,
		TaskCount:      completed,
		CompletedCount: completed,
		TotalCost:      cost,
		SuccessRate:    successRate,
	}}
}

func TestAggregateTotals(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	sessions := []SessionRecord{
		record("storefront", day1, 1.00, 4, 1.0),
		record("storefront", day1.Add(time.Hour), 2.00, 2, 0.5),
		record("marketing", day2, 3.00, 4, 0.75),
	}

	totals := Aggregate(sessions, time.Time{}, time.Time{})
	if totals.Sessions != 3 {
		t.Fatalf("Sessions = %d, want 3", totals.Sessions)
	}
	if totals.CompletedTasks != 10 {
		t.Fatalf("CompletedTasks = %d, want 10", totals.CompletedTasks)
	}
	if math.Abs(totals.TotalCost-6.00) > 1e-9 {
		t.Fatalf("TotalCost = %.2f, want 6.00", totals.TotalCost)
	}
	// 4 + 1 + 3 successes of 10 completed
	if math.Abs(totals.SuccessRate-0.8) > 1e-9 {
		t.Fatalf("SuccessRate = %.2f, want 0.8", totals.SuccessRate)
	}
	if totals.ActiveDays != 2 {
		t.Fatalf("ActiveDays = %d, want 2", totals.ActiveDays)
	}
	if math.Abs(totals.CostPerDay-3.00) > 1e-9 {
		t.Fatalf("CostPerDay = %.2f, want 3.00", totals.CostPerDay)
	}
}

func TestAggregateBucketsMergesAndSorts(t *testing.T) {
	a := SessionRecord{Summary: analytics.Summary{
		StartedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		ByModel: map[string]model.RollupBucket{
			"gpt-4o":      {Key: "gpt-4o", TaskCount: 2, SuccessCount: 2, TotalCost: 0.02, TotalTokens: 4000, TotalDurationMs: 2000},
			"gpt-4o-mini": {Key: "gpt-4o-mini", TaskCount: 1, SuccessCount: 1, TotalCost: 0.001, TotalTokens: 1000, TotalDurationMs: 500},
		},
	}}
	b := SessionRecord{Summary: analytics.Summary{
		StartedAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		ByModel: map[string]model.RollupBucket{
			"gpt-4o": {Key: "gpt-4o", TaskCount: 2, SuccessCount: 1, FailureCount: 1, TotalCost: 0.04, TotalTokens: 6000, TotalDurationMs: 4000},
		},
	}}

	buckets := AggregateBuckets([]SessionRecord{a, b}, ByModel, time.Time{}, time.Time{})
	if len(buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(buckets))
	}
	if buckets[0].Key != "gpt-4o" {
		t.Fatalf("top bucket = %s, want gpt-4o (highest cost)", buckets[0].Key)
	}
	top := buckets[0]
	if top.TaskCount != 4 || top.SuccessCount != 3 || top.FailureCount != 1 {
		t.Fatalf("merged counts = %+v", top)
	}
	if math.Abs(top.TotalCost-0.06) > 1e-9 {
		t.Fatalf("merged cost = %.4f, want 0.06", top.TotalCost)
	}
	if math.Abs(top.AvgCost-0.015) > 1e-9 {
		t.Fatalf("AvgCost = %.4f, want 0.015", top.AvgCost)
	}
}

func TestAggregateHealthWeightedMerge(t *testing.T) {
	a := SessionRecord{Summary: analytics.Summary{
		StartedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Health: model.HierarchyHealth{
			Levels: map[string]model.LevelStats{
				"atom": {Level: "atom", Tasks: 1, Artifacts: 2, AvgReusability: 8, ReuseArtifacts: 2},
			},
			BaseArtifacts: 2,
		},
	}}
	b := SessionRecord{Summary: analytics.Summary{
		StartedAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		Health: model.HierarchyHealth{
			Levels: map[string]model.LevelStats{
				"atom":     {Level: "atom", Tasks: 1, Artifacts: 1, AvgReusability: 5, ReuseArtifacts: 1},
				"molecule": {Level: "molecule", Tasks: 1, Artifacts: 1, AvgComplexity: 4, ComplexityArtifacts: 1},
			},
			BaseArtifacts:      1,
			CompositeArtifacts: 1,
		},
	}}

	h := AggregateHealth([]SessionRecord{a, b}, model.DefaultBaseLevels, model.DefaultHealthWeights, time.Time{}, time.Time{})

	atom := h.Levels["atom"]
	// (8*2 + 5*1) / 3 = 7
	if math.Abs(atom.AvgReusability-7) > 1e-9 {
		t.Fatalf("merged AvgReusability = %.2f, want 7", atom.AvgReusability)
	}
	if atom.ReuseArtifacts != 3 {
		t.Fatalf("ReuseArtifacts = %d, want 3", atom.ReuseArtifacts)
	}
	if math.Abs(h.BaseRatio-0.75) > 1e-9 {
		t.Fatalf("BaseRatio = %.2f, want 0.75", h.BaseRatio)
	}
	// 0.7*7 + 3*0.75 + 0.3*(10-4) = 4.9 + 2.25 + 1.8
	if math.Abs(h.ReusabilityIndex-8.95) > 1e-9 {
		t.Fatalf("ReusabilityIndex = %.4f, want 8.95", h.ReusabilityIndex)
	}
}

func TestFilters(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	sessions := []SessionRecord{
		record("storefront", day1, 1, 1, 1),
		record("marketing", day2, 1, 1, 1),
	}

	if got := FilterByTime(sessions, day2, time.Time{}); len(got) != 1 || got[0].Summary.Project != "marketing" {
		t.Fatalf("FilterByTime = %+v", got)
	}
	if got := FilterByProject(sessions, "STORE"); len(got) != 1 {
		t.Fatalf("FilterByProject = %d sessions, want 1", len(got))
	}
	if got := FilterByProject(sessions, ""); len(got) != 2 {
		t.Fatalf("empty project filter = %d sessions, want 2", len(got))
	}
}

func writeSessionLog(t *testing.T, dataDir, project, sessionID, lines string) string {
	t.Helper()
	dir := filepath.Join(dataDir, "sessions", project)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

const sampleLog = `{"type":"session_start","timestamp":"2026-03-10T09:00:00Z"}
{"type":"task_start","taskId":"t1","model":"gpt-4o","category":"generation","level":"atom","timestamp":"2026-03-10T09:00:01Z"}
{"type":"task_complete","taskId":"t1","timestamp":"2026-03-10T09:00:03Z","usage":{"input_tokens":1000,"output_tokens":500},"succeeded":true}
{"type":"session_end","timestamp":"2026-03-10T09:00:10Z"}
`

func TestLoadParsesDirectory(t *testing.T) {
	dataDir := t.TempDir()
	writeSessionLog(t, dataDir, "storefront", "sess-1", sampleLog)

	result, err := Load(dataDir, source.ParseOptions{}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.TotalFiles != 1 || result.ParsedFiles != 1 {
		t.Fatalf("files = %d/%d, want 1/1", result.TotalFiles, result.ParsedFiles)
	}
	if len(result.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(result.Sessions))
	}
	if result.Sessions[0].Summary.Project != "storefront" {
		t.Fatalf("project = %s", result.Sessions[0].Summary.Project)
	}
	if len(result.Sessions[0].Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(result.Sessions[0].Tasks))
	}
}

func TestLoadWithCacheHitsOnSecondLoad(t *testing.T) {
	dataDir := t.TempDir()
	writeSessionLog(t, dataDir, "storefront", "sess-1", sampleLog)

	cache, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer func() { _ = cache.Close() }()

	first, err := LoadWithCache(dataDir, source.ParseOptions{}, cache, nil)
	if err != nil {
		t.Fatalf("first LoadWithCache: %v", err)
	}
	if first.CacheHits != 0 || first.Reparsed != 1 {
		t.Fatalf("first load hits/reparsed = %d/%d, want 0/1", first.CacheHits, first.Reparsed)
	}

	second, err := LoadWithCache(dataDir, source.ParseOptions{}, cache, nil)
	if err != nil {
		t.Fatalf("second LoadWithCache: %v", err)
	}
	if second.CacheHits != 1 || second.Reparsed != 0 {
		t.Fatalf("second load hits/reparsed = %d/%d, want 1/0", second.CacheHits, second.Reparsed)
	}
	if len(second.Sessions) != 1 {
		t.Fatalf("cached sessions = %d, want 1", len(second.Sessions))
	}

	got := second.Sessions[0].Summary
	if got.SessionID != "sess-1" || got.CompletedCount != 1 {
		t.Fatalf("cached summary = %+v", got)
	}
	if math.Abs(got.TotalCost-0.0075) > 1e-9 {
		t.Fatalf("cached TotalCost = %.6f, want 0.0075", got.TotalCost)
	}
	if len(second.Sessions[0].Tasks) != 1 {
		t.Fatalf("cached tasks = %d, want 1", len(second.Sessions[0].Tasks))
	}
}
