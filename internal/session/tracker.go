// Package session implements the immutable session tracker: the per-session
// ledger of task records, incremental rollups, and hierarchy health.
//
// Every lifecycle operation takes the current tracker value and returns a new
// one; the caller retains the result as the new current state. This keeps
// single-session reasoning trivial — concurrency control lives in the
// registry, not here.
package session

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pricing"
)

// Tracker owns the task records and aggregates for one bounded work session.
type Tracker struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time // zero while active
	Active    bool

	Tasks map[string]model.TaskRecord

	ByModel    model.Rollup
	ByCategory model.Rollup
	ByLevel    model.Rollup
	Health     model.HierarchyHealth

	TotalCost      float64
	TotalTokens    int64
	CompletedCount int
	SucceededCount int
	SuccessRate    float64

	pricing    *pricing.Table
	weights    model.HealthWeights
	baseLevels map[string]bool
	logger     *zap.Logger
}

// Option configures a new tracker.
type Option func(*Tracker)

// WithPricing sets the pricing table used for cost computation.
func WithPricing(t *pricing.Table) Option {
	return func(tr *Tracker) { tr.pricing = t }
}

// WithLogger sets the logger for completion events.
func WithLogger(l *zap.Logger) Option {
	return func(tr *Tracker) { tr.logger = l }
}

// WithHealthWeights overrides the reusability-index coefficients.
func WithHealthWeights(w model.HealthWeights) Option {
	return func(tr *Tracker) { tr.weights = w }
}

// WithBaseLevels overrides which classification levels count as base-level.
func WithBaseLevels(levels []string) Option {
	return func(tr *Tracker) {
		tr.baseLevels = make(map[string]bool, len(levels))
		for _, l := range levels {
			tr.baseLevels[l] = true
		}
	}
}

// New creates an active tracker. See NewAt.
func New(sessionID string, opts ...Option) *Tracker {
	return NewAt(sessionID, time.Now(), opts...)
}

// NewAt creates an active tracker with an explicit start time.
func NewAt(sessionID string, at time.Time, opts ...Option) *Tracker {
	t := &Tracker{
		SessionID:  sessionID,
		StartedAt:  at,
		Active:     true,
		Tasks:      make(map[string]model.TaskRecord),
		ByModel:    make(model.Rollup),
		ByCategory: make(model.Rollup),
		ByLevel:    make(model.Rollup),
		Health:     model.NewHierarchyHealth(),
		weights:    model.DefaultHealthWeights,
		baseLevels: model.DefaultBaseLevels,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.pricing == nil {
		t.pricing = pricing.Default()
	}
	return t
}

// Pricing returns the tracker's pricing table.
func (t *Tracker) Pricing() *pricing.Table {
	return t.pricing
}

// Weights returns the reusability-index coefficients in effect.
func (t *Tracker) Weights() model.HealthWeights {
	return t.weights
}

// BaseLevels returns the set of levels counted as base-level.
func (t *Tracker) BaseLevels() map[string]bool {
	return t.baseLevels
}

// clone returns a copy with a fresh task map. Rollups and health are copied
// on fold, so the clone shares them until then.
func (t *Tracker) clone() *Tracker {
	out := *t
	out.Tasks = make(map[string]model.TaskRecord, len(t.Tasks)+1)
	for id, task := range t.Tasks {
		out.Tasks[id] = task
	}
	return &out
}

// StartTask records a pending task. See StartTaskAt.
func (t *Tracker) StartTask(taskID, modelID, category, level string) (*Tracker, error) {
	return t.StartTaskAt(taskID, modelID, category, level, time.Now())
}

// StartTaskAt records a pending task with an explicit start time. Fails when
// the session is inactive or the task id already exists.
func (t *Tracker) StartTaskAt(taskID, modelID, category, level string, at time.Time) (*Tracker, error) {
	if !t.Active {
		return nil, fmt.Errorf("start task %q: %w", taskID, ErrSessionInactive)
	}
	if _, exists := t.Tasks[taskID]; exists {
		return nil, fmt.Errorf("start task %q: %w", taskID, ErrDuplicateTask)
	}

	out := t.clone()
	out.Tasks[taskID] = model.TaskRecord{
		TaskID:    taskID,
		Model:     modelID,
		Category:  category,
		Level:     level,
		StartedAt: at,
	}
	return out, nil
}

// CompleteTask finalizes a pending task. See CompleteTaskAt.
func (t *Tracker) CompleteTask(
	taskID string,
	inputTokens, outputTokens int64,
	succeeded bool,
	errorMessage string,
	metrics *model.HierarchyMetrics,
) (*Tracker, error) {
	return t.CompleteTaskAt(taskID, inputTokens, outputTokens, succeeded, errorMessage, metrics, time.Now())
}

// CompleteTaskAt finalizes a pending task with measured token counts and
// outcome: computes costs from the pricing table (falling back to the default
// entry for unrecognized models), then folds the completed record into all
// three rollups, the hierarchy health, and the session totals. Returns the
// new session value; the prior value is untouched.
func (t *Tracker) CompleteTaskAt(
	taskID string,
	inputTokens, outputTokens int64,
	succeeded bool,
	errorMessage string,
	metrics *model.HierarchyMetrics,
	at time.Time,
) (*Tracker, error) {
	if !t.Active {
		return nil, fmt.Errorf("complete task %q: %w", taskID, ErrSessionInactive)
	}
	task, exists := t.Tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("complete task %q: %w", taskID, ErrUnknownTask)
	}
	if task.Completed() {
		return nil, fmt.Errorf("complete task %q: %w", taskID, ErrDuplicateTask)
	}
	if metrics != nil {
		if err := metrics.Validate(); err != nil {
			return nil, fmt.Errorf("complete task %q: %w: %v", taskID, ErrInvalidMetrics, err)
		}
	}

	entry, substituted := t.pricing.Resolve(task.Model)

	task.CompletedAt = at
	task.DurationMs = at.Sub(task.StartedAt).Milliseconds()
	task.InputTokens = inputTokens
	task.OutputTokens = outputTokens
	task.InputCost, task.OutputCost = entry.Cost(inputTokens, outputTokens)
	task.TotalCost = task.InputCost + task.OutputCost
	task.Succeeded = succeeded
	task.ErrorMessage = errorMessage
	task.Substituted = substituted
	if metrics != nil {
		task.Reusability = metrics.Reusability
		task.Complexity = metrics.Complexity
		task.DependsOn = append([]string(nil), metrics.DependsOn...)
		task.Artifacts = append([]string(nil), metrics.Artifacts...)
	}

	out := t.clone()
	out.Tasks[taskID] = task

	out.ByModel = t.ByModel.Folded(task.Model, task)
	out.ByCategory = t.ByCategory.Folded(task.Category, task)
	if task.Level != "" {
		out.ByLevel = t.ByLevel.Folded(task.Level, task)
	}
	out.Health = t.Health.Folded(task, t.baseLevels, t.weights)

	out.TotalCost += task.TotalCost
	out.TotalTokens += task.TotalTokens()
	out.CompletedCount++
	if succeeded {
		out.SucceededCount++
	}
	out.SuccessRate = float64(out.SucceededCount) / float64(out.CompletedCount)

	t.logger.Debug("task completed",
		zap.String("session_id", t.SessionID),
		zap.String("task_id", taskID),
		zap.String("model", task.Model),
		zap.Int64("input_tokens", inputTokens),
		zap.Int64("output_tokens", outputTokens),
		zap.Float64("cost_usd", task.TotalCost),
		zap.Bool("succeeded", succeeded),
		zap.Bool("fallback_pricing", substituted),
	)

	return out, nil
}

// End freezes the session. See EndAt.
func (t *Tracker) End() (*Tracker, error) {
	return t.EndAt(time.Now())
}

// EndAt freezes the session at an explicit time. Tasks can no longer be
// started or completed against the returned value.
func (t *Tracker) EndAt(at time.Time) (*Tracker, error) {
	if !t.Active {
		return nil, fmt.Errorf("end session %q: %w", t.SessionID, ErrAlreadyEnded)
	}

	out := t.clone()
	out.EndedAt = at
	out.Active = false

	t.logger.Info("session ended",
		zap.String("session_id", t.SessionID),
		zap.Int("tasks", len(t.Tasks)),
		zap.Int("completed", t.CompletedCount),
		zap.Float64("total_cost_usd", t.TotalCost),
	)
	return out, nil
}

// Elapsed returns the session's wall-clock span: start to end for ended
// sessions, start to now for active ones.
func (t *Tracker) Elapsed(now time.Time) time.Duration {
	if !t.EndedAt.IsZero() {
		return t.EndedAt.Sub(t.StartedAt)
	}
	return now.Sub(t.StartedAt)
}

// PendingCount returns tasks started but not completed. Abandoned pending
// tasks simply never transition and stay out of every aggregate.
func (t *Tracker) PendingCount() int {
	return len(t.Tasks) - t.CompletedCount
}

// CompletedTasks returns completed records ordered by completion time
// descending (most recent first).
func (t *Tracker) CompletedTasks() []model.TaskRecord {
	out := make([]model.TaskRecord, 0, t.CompletedCount)
	for _, task := range t.Tasks {
		if task.Completed() {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out
}
