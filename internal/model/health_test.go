package model

import (
	"math"
	"testing"
	"time"
)

func classifiedTask(level string, artifacts int, reuse, complexity *float64, cost float64) TaskRecord {
	names := make([]string, artifacts)
	for i := range names {
		names[i] = "artifact"
	}
	return TaskRecord{
		TaskID:      "t",
		Level:       level,
		CompletedAt: time.Now(),
		TotalCost:   cost,
		Reusability: reuse,
		Complexity:  complexity,
		Artifacts:   names,
		Succeeded:   true,
	}
}

func f(v float64) *float64 { return &v }

func TestFoldedBaseRatio(t *testing.T) {
	h := NewHierarchyHealth()

	h = h.Folded(classifiedTask("base", 1, nil, nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)
	h = h.Folded(classifiedTask("base", 1, nil, nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)
	h = h.Folded(classifiedTask("composite", 1, nil, nil, 0.02), DefaultBaseLevels, DefaultHealthWeights)

	if h.BaseArtifacts != 2 || h.CompositeArtifacts != 1 {
		t.Fatalf("artifacts = %d base / %d composite, want 2/1", h.BaseArtifacts, h.CompositeArtifacts)
	}
	if math.Abs(h.BaseRatio-2.0/3.0) > 1e-9 {
		t.Fatalf("BaseRatio = %.4f, want 0.6667", h.BaseRatio)
	}
	if h.BaseRatio < 0 || h.BaseRatio > 1 {
		t.Fatalf("BaseRatio %.4f out of [0,1]", h.BaseRatio)
	}
}

func TestFoldedSkipsUnclassifiedAndArtifactless(t *testing.T) {
	h := NewHierarchyHealth()

	h2 := h.Folded(classifiedTask("", 2, f(8), nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)
	if len(h2.Levels) != 0 {
		t.Fatal("unclassified task participated in hierarchy health")
	}

	h3 := h.Folded(classifiedTask("atom", 0, f(8), nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)
	if len(h3.Levels) != 0 {
		t.Fatal("artifactless task participated in hierarchy health")
	}
}

func TestFoldedWeightedAverages(t *testing.T) {
	h := NewHierarchyHealth()

	// Two artifacts scored 8, then one artifact scored 5: avg = (8*2+5*1)/3 = 7.
	h = h.Folded(classifiedTask("atom", 2, f(8), nil, 0.02), DefaultBaseLevels, DefaultHealthWeights)
	h = h.Folded(classifiedTask("atom", 1, f(5), nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)

	ls := h.Levels["atom"]
	if math.Abs(ls.AvgReusability-7.0) > 1e-9 {
		t.Fatalf("AvgReusability = %.4f, want 7.0", ls.AvgReusability)
	}
	if ls.Artifacts != 3 || ls.ReuseArtifacts != 3 {
		t.Fatalf("artifacts = %d, scored = %d, want 3/3", ls.Artifacts, ls.ReuseArtifacts)
	}
	if math.Abs(ls.CostPerArtifact-0.01) > 1e-9 {
		t.Fatalf("CostPerArtifact = %.4f, want 0.01", ls.CostPerArtifact)
	}
}

func TestFoldedUnscoredTaskDoesNotDiluteAverage(t *testing.T) {
	h := NewHierarchyHealth()

	h = h.Folded(classifiedTask("atom", 1, f(9), nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)
	h = h.Folded(classifiedTask("atom", 5, nil, nil, 0.05), DefaultBaseLevels, DefaultHealthWeights)

	ls := h.Levels["atom"]
	if ls.AvgReusability != 9 {
		t.Fatalf("AvgReusability = %.4f, want 9 (unscored artifacts must not dilute)", ls.AvgReusability)
	}
	if ls.Artifacts != 6 {
		t.Fatalf("Artifacts = %d, want 6", ls.Artifacts)
	}
	if ls.ReuseArtifacts != 1 {
		t.Fatalf("ReuseArtifacts = %d, want 1", ls.ReuseArtifacts)
	}
}

func TestReusabilityIndexFormula(t *testing.T) {
	h := NewHierarchyHealth()

	h = h.Folded(classifiedTask("atom", 1, f(8), nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)
	h = h.Folded(classifiedTask("molecule", 1, nil, f(4), 0.02), DefaultBaseLevels, DefaultHealthWeights)

	// 0.7*8 + 3*0.5 + 0.3*(10-4) = 5.6 + 1.5 + 1.8 = 8.9
	if math.Abs(h.ReusabilityIndex-8.9) > 1e-9 {
		t.Fatalf("ReusabilityIndex = %.4f, want 8.9", h.ReusabilityIndex)
	}
}

func TestFoldedDoesNotMutateReceiver(t *testing.T) {
	h := NewHierarchyHealth()
	h1 := h.Folded(classifiedTask("atom", 1, f(8), nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)
	_ = h1.Folded(classifiedTask("atom", 1, f(2), nil, 0.01), DefaultBaseLevels, DefaultHealthWeights)

	if h1.Levels["atom"].AvgReusability != 8 {
		t.Fatalf("intermediate health mutated: AvgReusability = %.2f, want 8",
			h1.Levels["atom"].AvgReusability)
	}
	if len(h.Levels) != 0 {
		t.Fatal("empty health mutated by fold")
	}
}
