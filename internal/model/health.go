package model

// HealthWeights are the coefficients combining base-level reusability, the
// base-to-composite ratio, and composite complexity into the scalar
// reusability index. The defaults are empirically chosen and deliberately
// configurable; see the governance section of the config file.
type HealthWeights struct {
	BaseReusability     float64
	BaseRatio           float64
	CompositeSimplicity float64
}

// DefaultHealthWeights are the stock coefficients.
var DefaultHealthWeights = HealthWeights{
	BaseReusability:     0.7,
	BaseRatio:           3,
	CompositeSimplicity: 0.3,
}

// DefaultBaseLevels are the classification levels counted as base-level.
// Any other non-empty level counts as composite.
var DefaultBaseLevels = map[string]bool{
	"atom": true,
	"base": true,
}

// LevelStats holds running aggregates for one classification level.
type LevelStats struct {
	Level     string
	Tasks     int
	Artifacts int

	// Weighted running averages over scored artifacts only. Tasks that
	// supplied no score neither shift the average nor dilute its weight.
	AvgReusability      float64
	ReuseArtifacts      int
	AvgComplexity       float64
	ComplexityArtifacts int

	TotalCost       float64
	CostPerArtifact float64
}

// HierarchyHealth is the session-scoped classification-hierarchy summary:
// per-level stats, base/composite artifact balance, and the scalar
// reusability index.
type HierarchyHealth struct {
	Levels map[string]LevelStats

	BaseArtifacts      int
	CompositeArtifacts int
	BaseRatio          float64 // base / (base + composite), 0 when empty

	ReusabilityIndex float64
}

// NewHierarchyHealth returns an empty health summary.
func NewHierarchyHealth() HierarchyHealth {
	return HierarchyHealth{Levels: make(map[string]LevelStats)}
}

// Clone returns a deep copy.
func (h HierarchyHealth) Clone() HierarchyHealth {
	out := h
	out.Levels = make(map[string]LevelStats, len(h.Levels))
	for k, v := range h.Levels {
		out.Levels[k] = v
	}
	return out
}

// Folded returns the health summary with one completed task folded in.
// Only tasks carrying a non-empty level and at least one produced artifact
// participate. baseLevels decides which levels count as base; weights feeds
// the index recomputation. The receiver is not modified.
func (h HierarchyHealth) Folded(t TaskRecord, baseLevels map[string]bool, weights HealthWeights) HierarchyHealth {
	if t.Level == "" || len(t.Artifacts) == 0 {
		return h
	}

	out := h.Clone()
	produced := len(t.Artifacts)

	ls, ok := out.Levels[t.Level]
	if !ok {
		ls = LevelStats{Level: t.Level}
	}
	ls.Tasks++
	ls.Artifacts += produced
	ls.TotalCost += t.TotalCost
	ls.CostPerArtifact = ls.TotalCost / float64(ls.Artifacts)

	if t.Reusability != nil {
		ls.AvgReusability = weightedMean(ls.AvgReusability, ls.ReuseArtifacts, *t.Reusability, produced)
		ls.ReuseArtifacts += produced
	}
	if t.Complexity != nil {
		ls.AvgComplexity = weightedMean(ls.AvgComplexity, ls.ComplexityArtifacts, *t.Complexity, produced)
		ls.ComplexityArtifacts += produced
	}
	out.Levels[t.Level] = ls

	if baseLevels[t.Level] {
		out.BaseArtifacts += produced
	} else {
		out.CompositeArtifacts += produced
	}

	total := out.BaseArtifacts + out.CompositeArtifacts
	if total > 0 {
		out.BaseRatio = float64(out.BaseArtifacts) / float64(total)
	} else {
		out.BaseRatio = 0
	}

	out.ReusabilityIndex = out.computeIndex(baseLevels, weights)
	return out
}

func weightedMean(oldAvg float64, oldCount int, score float64, newCount int) float64 {
	total := oldCount + newCount
	if total == 0 {
		return oldAvg
	}
	return (oldAvg*float64(oldCount) + score*float64(newCount)) / float64(total)
}

// AvgBaseReusability is the artifact-weighted average reusability across all
// base levels, 0 when nothing scored.
func (h HierarchyHealth) AvgBaseReusability(baseLevels map[string]bool) float64 {
	return h.scoredAverage(baseLevels, true)
}

// AvgCompositeComplexity is the artifact-weighted average complexity across
// all composite levels, 0 when nothing scored.
func (h HierarchyHealth) AvgCompositeComplexity(baseLevels map[string]bool) float64 {
	return h.scoredAverage(baseLevels, false)
}

func (h HierarchyHealth) scoredAverage(baseLevels map[string]bool, base bool) float64 {
	var sum float64
	var weight int
	for level, ls := range h.Levels {
		if baseLevels[level] != base {
			continue
		}
		if base {
			sum += ls.AvgReusability * float64(ls.ReuseArtifacts)
			weight += ls.ReuseArtifacts
		} else {
			sum += ls.AvgComplexity * float64(ls.ComplexityArtifacts)
			weight += ls.ComplexityArtifacts
		}
	}
	if weight == 0 {
		return 0
	}
	return sum / float64(weight)
}

func (h HierarchyHealth) computeIndex(baseLevels map[string]bool, w HealthWeights) float64 {
	return w.BaseReusability*h.AvgBaseReusability(baseLevels) +
		w.BaseRatio*h.BaseRatio +
		w.CompositeSimplicity*(10-h.AvgCompositeComplexity(baseLevels))
}
