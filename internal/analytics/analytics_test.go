package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pricing"
	"github.com/AngeloRai/genmeter/internal/registry"
	"github.com/AngeloRai/genmeter/internal/session"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func trackerWithTasks(t *testing.T, costs []float64) *session.Tracker {
	t.Helper()

	// $1.00 per 1000 input tokens makes costs easy to dial in.
	tbl := pricing.NewTable(map[string]pricing.Entry{
		"flat": {InputPerMTok: 1000, OutputPerMTok: 0, MaxTokens: 8192},
	})
	tr := session.NewAt("sess-1", t0, session.WithPricing(tbl))

	at := t0
	for i, cost := range costs {
		id := string(rune('a' + i))
		var err error
		tr, err = tr.StartTaskAt(id, "flat", "generation", "", at)
		if err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
		at = at.Add(time.Second)
		tokens := int64(cost * 1000)
		tr, err = tr.CompleteTaskAt(id, tokens, 0, true, "", nil, at)
		if err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
	}
	return tr
}

func TestSummarizeEfficiencyGuardsZeroElapsed(t *testing.T) {
	tr := session.NewAt("sess-1", t0)

	s := SummarizeAt(tr, t0)
	if s.Efficiency.CostPerSecond != 0 || s.Efficiency.TokensPerSecond != 0 {
		t.Fatalf("efficiency = %+v, want zeros at zero elapsed", s.Efficiency)
	}
	if s.SuccessRate != 0 {
		t.Fatalf("SuccessRate = %.2f, want 0", s.SuccessRate)
	}
}

func TestSummarizeEfficiency(t *testing.T) {
	tr := trackerWithTasks(t, []float64{0.50, 0.50})

	// Two tasks completed by t0+2s; summarize 10s in.
	s := SummarizeAt(tr, t0.Add(10*time.Second))
	if math.Abs(s.Efficiency.CostPerSecond-0.10) > 1e-9 {
		t.Fatalf("CostPerSecond = %.4f, want 0.10", s.Efficiency.CostPerSecond)
	}
	if math.Abs(s.Efficiency.AvgTaskDurationMs-1000) > 1e-9 {
		t.Fatalf("AvgTaskDurationMs = %.0f, want 1000", s.Efficiency.AvgTaskDurationMs)
	}
	if s.CompletedCount != 2 || s.TaskCount != 2 {
		t.Fatalf("counts = %d/%d, want 2/2", s.CompletedCount, s.TaskCount)
	}
}

func TestSummarySnapshotIsDetached(t *testing.T) {
	tr := trackerWithTasks(t, []float64{0.25})

	s := SummarizeAt(tr, t0.Add(time.Minute))
	s.ByModel["flat"] = model.RollupBucket{Key: "flat", TaskCount: 99}

	if tr.ByModel["flat"].TaskCount == 99 {
		t.Fatal("mutating the summary snapshot reached the tracker")
	}
}

func TestSummarizeSubstitutionsAreSessionScoped(t *testing.T) {
	// Both sessions share the registry's pricing table; only the session
	// that actually hit the fallback may report the substitution.
	reg := registry.New()
	if _, err := reg.Create("a"); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := reg.Create("b"); err != nil {
		t.Fatalf("create b: %v", err)
	}

	if _, err := reg.StartTask("a", "t1", "mystery-model", "generation", ""); err != nil {
		t.Fatalf("start a/t1: %v", err)
	}
	if _, err := reg.CompleteTask("a", "t1", 1000, 500, true, "", nil); err != nil {
		t.Fatalf("complete a/t1: %v", err)
	}
	if _, err := reg.StartTask("b", "t1", "gpt-4o", "generation", ""); err != nil {
		t.Fatalf("start b/t1: %v", err)
	}
	if _, err := reg.CompleteTask("b", "t1", 1000, 500, true, "", nil); err != nil {
		t.Fatalf("complete b/t1: %v", err)
	}

	a, err := reg.Get("a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	b, err := reg.Get("b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}

	sa := Summarize(a)
	if len(sa.SubstitutedModels) != 1 || sa.SubstitutedModels[0] != "mystery-model" {
		t.Fatalf("session a SubstitutedModels = %v, want [mystery-model]", sa.SubstitutedModels)
	}
	sb := Summarize(b)
	if len(sb.SubstitutedModels) != 0 {
		t.Fatalf("session b SubstitutedModels = %v, want none", sb.SubstitutedModels)
	}
}

func TestProjectZeroCompleted(t *testing.T) {
	tr := session.NewAt("sess-1", t0)

	p := Project(tr, 10)
	if p.Confidence != 0 {
		t.Fatalf("Confidence = %.2f, want 0", p.Confidence)
	}
	if p.ProjectedTotalCost != tr.TotalCost {
		t.Fatalf("ProjectedTotalCost = %.4f, want current total %.4f", p.ProjectedTotalCost, tr.TotalCost)
	}
}

func TestProjectExtrapolatesAverage(t *testing.T) {
	tr := trackerWithTasks(t, []float64{0.20, 0.40})

	p := Project(tr, 3)
	if math.Abs(p.AvgCostPerTask-0.30) > 1e-9 {
		t.Fatalf("AvgCostPerTask = %.4f, want 0.30", p.AvgCostPerTask)
	}
	// 0.60 current + 3 * 0.30 projected
	if math.Abs(p.ProjectedTotalCost-1.50) > 1e-9 {
		t.Fatalf("ProjectedTotalCost = %.4f, want 1.50", p.ProjectedTotalCost)
	}
	if math.Abs(p.Confidence-2.0/5.0) > 1e-9 {
		t.Fatalf("Confidence = %.4f, want 0.4", p.Confidence)
	}

	full := Project(trackerWithTasks(t, []float64{1, 1, 1, 1, 1, 1, 1}), 1)
	if full.Confidence != 1 {
		t.Fatalf("Confidence = %.2f, want capped at 1", full.Confidence)
	}
}

func TestProjectWithFloor(t *testing.T) {
	tr := trackerWithTasks(t, []float64{0.20, 0.40})

	p := ProjectWithFloor(tr, 0, 10)
	if math.Abs(p.Confidence-0.2) > 1e-9 {
		t.Fatalf("Confidence = %.4f, want 0.2 with floor 10", p.Confidence)
	}

	// Non-positive floors fall back to the default.
	p = ProjectWithFloor(tr, 0, 0)
	if math.Abs(p.Confidence-2.0/DefaultConfidenceTaskFloor) > 1e-9 {
		t.Fatalf("Confidence = %.4f, want default-floor value", p.Confidence)
	}
}

func TestCheckLimitsSessionCost(t *testing.T) {
	tr := trackerWithTasks(t, []float64{0.45, 0.40})

	warnings := CheckLimits(tr, 1.00, 0)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	w := warnings[0]
	if w.Kind != SessionCostWarning || w.Severity != SeverityWarning {
		t.Fatalf("warning = %+v, want session_cost/warning", w)
	}

	over := trackerWithTasks(t, []float64{0.60, 0.55})
	warnings = CheckLimits(over, 1.00, 0)
	if len(warnings) != 1 || warnings[0].Severity != SeverityCritical {
		t.Fatalf("warnings = %+v, want one critical", warnings)
	}

	under := trackerWithTasks(t, []float64{0.10})
	if warnings := CheckLimits(under, 1.00, 0); len(warnings) != 0 {
		t.Fatalf("warnings = %+v, want none under 80%%", warnings)
	}
}

func TestCheckLimitsRecentTasks(t *testing.T) {
	// Four tasks; the expensive one is oldest and must fall outside the
	// three-task window.
	tr := trackerWithTasks(t, []float64{5.00, 0.10, 0.10, 0.10})

	if warnings := CheckLimits(tr, 0, 1.00); len(warnings) != 0 {
		t.Fatalf("warnings = %+v, want none (expensive task outside window)", warnings)
	}

	tr2 := trackerWithTasks(t, []float64{0.10, 0.10, 2.00, 3.00})
	warnings := CheckLimits(tr2, 0, 1.00)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	w := warnings[0]
	if w.Kind != TaskCostWarning {
		t.Fatalf("kind = %s, want task_cost", w.Kind)
	}
	if len(w.TaskIDs) != 2 {
		t.Fatalf("TaskIDs = %v, want 2 offenders", w.TaskIDs)
	}
	if math.Abs(w.Amount-3.00) > 1e-9 {
		t.Fatalf("Amount = %.2f, want worst offender 3.00", w.Amount)
	}
}

func TestCanStartTask(t *testing.T) {
	tr := trackerWithTasks(t, []float64{0.50})

	if !CanStartTask(tr, 1.00) {
		t.Fatal("gate closed under budget")
	}
	if CanStartTask(tr, 0.40) {
		t.Fatal("gate open over budget")
	}
	if !CanStartTask(tr, 0) {
		t.Fatal("gate closed with limits disabled")
	}

	ended, err := tr.EndAt(t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("EndAt: %v", err)
	}
	if CanStartTask(ended, 100) {
		t.Fatal("gate open on ended session")
	}
}

func TestAssessTiersAndFlags(t *testing.T) {
	tbl := pricing.Default()
	tr := session.NewAt("sess-1", t0, session.WithPricing(tbl))

	reuse := 8.0
	complexity := 3.0
	at := t0
	add := func(id, level string, m *model.HierarchyMetrics) {
		t.Helper()
		var err error
		tr, err = tr.StartTaskAt(id, "gpt-4o", "generation", level, at)
		if err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
		at = at.Add(time.Second)
		tr, err = tr.CompleteTaskAt(id, 1000, 500, true, "", m, at)
		if err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
	}

	add("a1", "atom", &model.HierarchyMetrics{Reusability: &reuse, Artifacts: []string{"Button"}})
	add("a2", "atom", &model.HierarchyMetrics{Reusability: &reuse, Artifacts: []string{"Input"}})
	add("m1", "molecule", &model.HierarchyMetrics{Complexity: &complexity, Artifacts: []string{"Form"}})

	a := Assess(tr)
	// 0.7*8 + 3*(2/3) + 0.3*7 = 5.6 + 2 + 2.1 = 9.7
	if a.Tier != "excellent" {
		t.Fatalf("Tier = %s (index %.2f), want excellent", a.Tier, a.ReusabilityIndex)
	}
	if !a.BaseFirst || !a.ReusabilityFocus || !a.SimplicityMaintained {
		t.Fatalf("flags = %+v, want all true", a)
	}
	if len(a.Recommendations) == 0 {
		t.Fatal("no recommendations returned")
	}

	empty := Assess(session.NewAt("sess-2", t0))
	if empty.Tier != "needs-improvement" {
		t.Fatalf("empty session tier = %s, want needs-improvement", empty.Tier)
	}
}
