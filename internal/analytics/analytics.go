// Package analytics provides read-only summaries, projections, limit checks,
// and health assessments over a session tracker. Nothing here mutates state.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/session"
)

// DefaultConfidenceTaskFloor is the completed-task count at which a cost
// projection reaches full confidence. A maturity heuristic, not a statistical
// interval; the value is empirically chosen. Callers with a configured floor
// use ProjectWithFloor.
const DefaultConfidenceTaskFloor = 5.0

// RecentTaskWindow is how many of the most recently completed tasks the
// per-task limit check inspects.
const RecentTaskWindow = 3

// SessionWarnFraction is the share of the session budget at which a soft
// warning is raised.
const SessionWarnFraction = 0.8

// Efficiency holds session-level throughput figures.
type Efficiency struct {
	CostPerSecond     float64 `json:"cost_per_second"`
	TokensPerSecond   float64 `json:"tokens_per_second"`
	AvgTaskDurationMs float64 `json:"avg_task_duration_ms"`
}

// Summary is a read-only snapshot of one session.
type Summary struct {
	SessionID string    `json:"session_id"`
	Project   string    `json:"project,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Active    bool      `json:"active"`

	TaskCount      int `json:"task_count"`
	CompletedCount int `json:"completed_count"`
	PendingCount   int `json:"pending_count"`

	TotalCost   float64 `json:"total_cost_usd"`
	TotalTokens int64   `json:"total_tokens"`
	SuccessRate float64 `json:"success_rate"`

	ByModel    map[string]model.RollupBucket `json:"by_model"`
	ByCategory map[string]model.RollupBucket `json:"by_category"`
	ByLevel    map[string]model.RollupBucket `json:"by_level"`

	Health     model.HierarchyHealth `json:"health"`
	Efficiency Efficiency            `json:"efficiency"`

	// SubstitutedModels lists model ids this session priced with the
	// fallback entry.
	SubstitutedModels []string `json:"substituted_models,omitempty"`
}

// Summarize snapshots a tracker. See SummarizeAt.
func Summarize(t *session.Tracker) Summary {
	return SummarizeAt(t, time.Now())
}

// SummarizeAt snapshots a tracker, computing elapsed-time efficiency against
// the given reference time for active sessions.
func SummarizeAt(t *session.Tracker, now time.Time) Summary {
	s := Summary{
		SessionID:      t.SessionID,
		StartedAt:      t.StartedAt,
		EndedAt:        t.EndedAt,
		Active:         t.Active,
		TaskCount:      len(t.Tasks),
		CompletedCount: t.CompletedCount,
		PendingCount:   t.PendingCount(),
		TotalCost:      t.TotalCost,
		TotalTokens:    t.TotalTokens,
		SuccessRate:    t.SuccessRate,
		ByModel:        t.ByModel.Clone(),
		ByCategory:     t.ByCategory.Clone(),
		ByLevel:        t.ByLevel.Clone(),
		Health:         t.Health.Clone(),
	}

	s.SubstitutedModels = substitutedModels(t)

	elapsed := t.Elapsed(now).Seconds()
	if elapsed > 0 {
		s.Efficiency.CostPerSecond = t.TotalCost / elapsed
		s.Efficiency.TokensPerSecond = float64(t.TotalTokens) / elapsed
	}
	if t.CompletedCount > 0 {
		var totalMs int64
		for _, task := range t.Tasks {
			if task.Completed() {
				totalMs += task.DurationMs
			}
		}
		s.Efficiency.AvgTaskDurationMs = float64(totalMs) / float64(t.CompletedCount)
	}

	return s
}

// substitutedModels collects the distinct model ids whose completed tasks
// were priced with the fallback entry. Derived from the session's own task
// records, not the pricing table: tables can be shared across sessions.
func substitutedModels(t *session.Tracker) []string {
	seen := make(map[string]struct{})
	for _, task := range t.Tasks {
		if task.Completed() && task.Substituted {
			seen[task.Model] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	models := make([]string, 0, len(seen))
	for m := range seen {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Projection extrapolates session cost over an estimated remaining workload.
type Projection struct {
	ProjectedTotalCost   float64 `json:"projected_total_cost_usd"`
	ProjectedTotalTokens int64   `json:"projected_total_tokens"`
	AvgCostPerTask       float64 `json:"avg_cost_per_task_usd"`
	Confidence           float64 `json:"confidence"`
	EstimatedRemaining   int     `json:"estimated_remaining"`
}

// Project extrapolates from the completed-task average using the default
// confidence floor. With zero completed tasks it returns the current totals
// at confidence 0.
func Project(t *session.Tracker, estimatedRemaining int) Projection {
	return ProjectWithFloor(t, estimatedRemaining, DefaultConfidenceTaskFloor)
}

// ProjectWithFloor is Project with an explicit confidence task floor.
// Floors of zero or below fall back to the default.
func ProjectWithFloor(t *session.Tracker, estimatedRemaining int, floor float64) Projection {
	if floor <= 0 {
		floor = DefaultConfidenceTaskFloor
	}

	p := Projection{
		ProjectedTotalCost:   t.TotalCost,
		ProjectedTotalTokens: t.TotalTokens,
		EstimatedRemaining:   estimatedRemaining,
	}
	if t.CompletedCount == 0 {
		return p
	}

	completed := float64(t.CompletedCount)
	p.AvgCostPerTask = t.TotalCost / completed
	avgTokens := float64(t.TotalTokens) / completed

	p.ProjectedTotalCost = t.TotalCost + p.AvgCostPerTask*float64(estimatedRemaining)
	p.ProjectedTotalTokens = t.TotalTokens + int64(avgTokens*float64(estimatedRemaining))

	p.Confidence = completed / floor
	if p.Confidence > 1 {
		p.Confidence = 1
	}
	return p
}

// WarningKind discriminates limit warnings.
type WarningKind string

// Severity grades a warning.
type Severity string

const (
	SessionCostWarning WarningKind = "session_cost"
	TaskCostWarning    WarningKind = "task_cost"

	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// LimitWarning is an advisory limit-breach signal. Warnings never block task
// creation; callers wanting hard enforcement consult CanStartTask.
type LimitWarning struct {
	Kind     WarningKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Amount   float64     `json:"amount_usd"`
	Limit    float64     `json:"limit_usd"`
	TaskIDs  []string    `json:"task_ids,omitempty"`
}

// CheckLimits inspects session spend against maxSessionCost and the most
// recently completed tasks against maxTaskCost. Limits of zero or below
// disable the respective check.
func CheckLimits(t *session.Tracker, maxSessionCost, maxTaskCost float64) []LimitWarning {
	return checkLimits(t.TotalCost, recentTasks(t.CompletedTasks(), RecentTaskWindow), maxSessionCost, maxTaskCost)
}

// CheckStoredLimits runs the same checks over a persisted summary and its
// audit trail, for reporting paths that no longer hold a live tracker.
func CheckStoredLimits(s Summary, tasks []model.TaskRecord, maxSessionCost, maxTaskCost float64) []LimitWarning {
	completed := make([]model.TaskRecord, 0, len(tasks))
	for _, task := range tasks {
		if task.Completed() {
			completed = append(completed, task)
		}
	}
	sortTasksByCompletedDesc(completed)
	return checkLimits(s.TotalCost, recentTasks(completed, RecentTaskWindow), maxSessionCost, maxTaskCost)
}

func checkLimits(totalCost float64, recent []model.TaskRecord, maxSessionCost, maxTaskCost float64) []LimitWarning {
	var warnings []LimitWarning

	if maxSessionCost > 0 {
		switch {
		case totalCost > maxSessionCost:
			warnings = append(warnings, LimitWarning{
				Kind:     SessionCostWarning,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("session cost $%.4f exceeds limit $%.2f", totalCost, maxSessionCost),
				Amount:   totalCost,
				Limit:    maxSessionCost,
			})
		case totalCost > SessionWarnFraction*maxSessionCost:
			warnings = append(warnings, LimitWarning{
				Kind:     SessionCostWarning,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("session cost $%.4f above %.0f%% of limit $%.2f", totalCost, SessionWarnFraction*100, maxSessionCost),
				Amount:   totalCost,
				Limit:    maxSessionCost,
			})
		}
	}

	if maxTaskCost > 0 {
		var over []string
		var worst float64
		for _, task := range recent {
			if task.TotalCost > maxTaskCost {
				over = append(over, task.TaskID)
				if task.TotalCost > worst {
					worst = task.TotalCost
				}
			}
		}
		if len(over) > 0 {
			warnings = append(warnings, LimitWarning{
				Kind:     TaskCostWarning,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("%d of the last %d tasks exceeded the per-task limit $%.2f", len(over), len(recent), maxTaskCost),
				Amount:   worst,
				Limit:    maxTaskCost,
				TaskIDs:  over,
			})
		}
	}

	return warnings
}

func recentTasks(sorted []model.TaskRecord, n int) []model.TaskRecord {
	if len(sorted) > n {
		return sorted[:n]
	}
	return sorted
}

func sortTasksByCompletedDesc(tasks []model.TaskRecord) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CompletedAt.After(tasks[j].CompletedAt)
	})
}

// CanStartTask is the optional hard gate: true while the session is active
// and under budget. Kept separate from the accounting core so advisory
// warnings and enforcement stay independently testable.
func CanStartTask(t *session.Tracker, maxSessionCost float64) bool {
	if !t.Active {
		return false
	}
	if maxSessionCost <= 0 {
		return true
	}
	return t.TotalCost < maxSessionCost
}

// Assessment is a qualitative read of the hierarchy health.
type Assessment struct {
	Tier             string   `json:"tier"` // excellent | good | needs-improvement
	ReusabilityIndex float64  `json:"reusability_index"`
	Recommendations  []string `json:"recommendations"`

	BaseFirst            bool `json:"base_first"`
	ReusabilityFocus     bool `json:"reusability_focus"`
	SimplicityMaintained bool `json:"simplicity_maintained"`
}

// Assess buckets the reusability index into tiers and derives the boolean
// posture flags.
func Assess(t *session.Tracker) Assessment {
	return AssessHealth(t.Health, t.BaseLevels())
}

// AssessHealth is Assess over a standalone health summary, for stored or
// merged data that no longer has a live tracker.
func AssessHealth(h model.HierarchyHealth, base map[string]bool) Assessment {
	a := Assessment{
		ReusabilityIndex:     h.ReusabilityIndex,
		BaseFirst:            h.BaseRatio > 0.6,
		ReusabilityFocus:     h.AvgBaseReusability(base) > 7,
		SimplicityMaintained: h.AvgCompositeComplexity(base) < 6,
	}

	switch {
	case h.ReusabilityIndex > 8:
		a.Tier = "excellent"
		a.Recommendations = []string{
			"Hierarchy is healthy; keep building composites from the existing base set.",
		}
	case h.ReusabilityIndex > 6:
		a.Tier = "good"
		a.Recommendations = []string{
			"Favor reusing base-level artifacts before generating new ones.",
			"Review recent composites for extractable base pieces.",
		}
	default:
		a.Tier = "needs-improvement"
		a.Recommendations = []string{
			"Generate more base-level artifacts before composing.",
			"Raise reusability of base artifacts (props, variants) instead of one-offs.",
			"Split complex composites into smaller pieces.",
		}
	}

	return a
}
