// Package pipeline orchestrates session loading, caching, and cross-session
// aggregation.
package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/AngeloRai/genmeter/internal/model"
)

// Totals holds fleet-wide statistics across a set of sessions.
type Totals struct {
	Sessions       int
	ActiveSessions int
	TaskCount      int
	CompletedTasks int
	TotalCost      float64
	TotalTokens    int64
	SuccessRate    float64 // weighted by completed tasks

	ActiveDays int
	CostPerDay float64

	SubstitutedModels []string
}

// Aggregate computes summary totals from sessions within the given time
// range.
func Aggregate(sessions []SessionRecord, since, until time.Time) Totals {
	filtered := FilterByTime(sessions, since, until)

	var totals Totals
	var succeeded int
	activeDays := make(map[string]struct{})
	substituted := make(map[string]struct{})

	for _, sr := range filtered {
		s := sr.Summary
		totals.Sessions++
		if s.Active {
			totals.ActiveSessions++
		}
		totals.TaskCount += s.TaskCount
		totals.CompletedTasks += s.CompletedCount
		totals.TotalCost += s.TotalCost
		totals.TotalTokens += s.TotalTokens
		succeeded += int(s.SuccessRate*float64(s.CompletedCount) + 0.5)

		if !s.StartedAt.IsZero() {
			day := s.StartedAt.Local().Format("2006-01-02")
			activeDays[day] = struct{}{}
		}
		for _, m := range s.SubstitutedModels {
			substituted[m] = struct{}{}
		}
	}

	if totals.CompletedTasks > 0 {
		totals.SuccessRate = float64(succeeded) / float64(totals.CompletedTasks)
	}
	totals.ActiveDays = len(activeDays)
	if totals.ActiveDays > 0 {
		totals.CostPerDay = totals.TotalCost / float64(totals.ActiveDays)
	}

	for m := range substituted {
		totals.SubstitutedModels = append(totals.SubstitutedModels, m)
	}
	sort.Strings(totals.SubstitutedModels)

	return totals
}

// Dimension selects which per-session rollup to merge across sessions.
type Dimension int

const (
	ByModel Dimension = iota
	ByCategory
	ByLevel
)

// AggregateBuckets merges one rollup dimension across sessions into a single
// set of buckets, sorted by total cost descending.
func AggregateBuckets(sessions []SessionRecord, dim Dimension, since, until time.Time) []model.RollupBucket {
	filtered := FilterByTime(sessions, since, until)

	merged := make(map[string]model.RollupBucket)
	for _, sr := range filtered {
		var rollup map[string]model.RollupBucket
		switch dim {
		case ByModel:
			rollup = sr.Summary.ByModel
		case ByCategory:
			rollup = sr.Summary.ByCategory
		case ByLevel:
			rollup = sr.Summary.ByLevel
		}
		for key, b := range rollup {
			merged[key] = mergeBuckets(merged[key], b, key)
		}
	}

	buckets := make([]model.RollupBucket, 0, len(merged))
	for _, b := range merged {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].TotalCost > buckets[j].TotalCost
	})

	return buckets
}

func mergeBuckets(acc, b model.RollupBucket, key string) model.RollupBucket {
	acc.Key = key
	acc.TaskCount += b.TaskCount
	acc.SuccessCount += b.SuccessCount
	acc.FailureCount += b.FailureCount
	acc.TotalCost += b.TotalCost
	acc.TotalTokens += b.TotalTokens
	acc.TotalDurationMs += b.TotalDurationMs

	if acc.TaskCount > 0 {
		n := float64(acc.TaskCount)
		acc.AvgCost = acc.TotalCost / n
		acc.AvgTokens = float64(acc.TotalTokens) / n
		acc.AvgDurationMs = float64(acc.TotalDurationMs) / n
	}
	return acc
}

// AggregateHealth merges per-session hierarchy health into a fleet view.
// Running averages combine weighted by their scored-artifact counts; the
// reusability index is recomputed from the merged aggregates.
func AggregateHealth(sessions []SessionRecord, baseLevels map[string]bool, weights model.HealthWeights, since, until time.Time) model.HierarchyHealth {
	filtered := FilterByTime(sessions, since, until)

	out := model.NewHierarchyHealth()
	for _, sr := range filtered {
		h := sr.Summary.Health
		out.BaseArtifacts += h.BaseArtifacts
		out.CompositeArtifacts += h.CompositeArtifacts

		for level, ls := range h.Levels {
			acc, ok := out.Levels[level]
			if !ok {
				acc = model.LevelStats{Level: level}
			}
			acc.Tasks += ls.Tasks
			acc.Artifacts += ls.Artifacts
			acc.TotalCost += ls.TotalCost
			if acc.Artifacts > 0 {
				acc.CostPerArtifact = acc.TotalCost / float64(acc.Artifacts)
			}

			acc.AvgReusability = combineMeans(acc.AvgReusability, acc.ReuseArtifacts, ls.AvgReusability, ls.ReuseArtifacts)
			acc.ReuseArtifacts += ls.ReuseArtifacts
			acc.AvgComplexity = combineMeans(acc.AvgComplexity, acc.ComplexityArtifacts, ls.AvgComplexity, ls.ComplexityArtifacts)
			acc.ComplexityArtifacts += ls.ComplexityArtifacts

			out.Levels[level] = acc
		}
	}

	total := out.BaseArtifacts + out.CompositeArtifacts
	if total > 0 {
		out.BaseRatio = float64(out.BaseArtifacts) / float64(total)
	}
	out.ReusabilityIndex = weights.BaseReusability*out.AvgBaseReusability(baseLevels) +
		weights.BaseRatio*out.BaseRatio +
		weights.CompositeSimplicity*(10-out.AvgCompositeComplexity(baseLevels))

	return out
}

func combineMeans(avgA float64, countA int, avgB float64, countB int) float64 {
	total := countA + countB
	if total == 0 {
		return 0
	}
	return (avgA*float64(countA) + avgB*float64(countB)) / float64(total)
}

// FilterByTime returns sessions whose start time falls within [since, until).
func FilterByTime(sessions []SessionRecord, since, until time.Time) []SessionRecord {
	if since.IsZero() && until.IsZero() {
		return sessions
	}

	var result []SessionRecord
	for _, sr := range sessions {
		start := sr.Summary.StartedAt
		if start.IsZero() {
			continue
		}
		if !since.IsZero() && start.Before(since) {
			continue
		}
		if !until.IsZero() && !start.Before(until) {
			continue
		}
		result = append(result, sr)
	}
	return result
}

// FilterByProject returns sessions matching the project substring.
func FilterByProject(sessions []SessionRecord, project string) []SessionRecord {
	if project == "" {
		return sessions
	}
	var result []SessionRecord
	for _, sr := range sessions {
		if containsIgnoreCase(sr.Summary.Project, project) {
			result = append(result, sr)
		}
	}
	return result
}

// FilterByModel returns sessions with at least one task on the given model.
func FilterByModel(sessions []SessionRecord, modelFilter string) []SessionRecord {
	if modelFilter == "" {
		return sessions
	}
	var result []SessionRecord
	for _, sr := range sessions {
		for m := range sr.Summary.ByModel {
			if containsIgnoreCase(m, modelFilter) {
				result = append(result, sr)
				break
			}
		}
	}
	return result
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// SortSessionsByStart orders sessions most recently started first.
func SortSessionsByStart(sessions []SessionRecord) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Summary.StartedAt.After(sessions[j].Summary.StartedAt)
	})
}
