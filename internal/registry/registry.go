// Package registry is the process-wide session store: it maps session ids to
// the latest tracker value and serializes read-modify-write sequences per
// session so concurrent completions cannot lose updates.
//
// The registry is an explicit object handed to callers, never ambient global
// state.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pricing"
	"github.com/AngeloRai/genmeter/internal/session"
)

// Session store errors.
var (
	ErrDuplicateSession = errors.New("duplicate session id")
	ErrUnknownSession   = errors.New("unknown session id")
)

// slot pairs one session's current value with the mutex that serializes its
// read-modify-write sequences. Distinct sessions proceed in parallel.
type slot struct {
	mu      sync.Mutex
	tracker *session.Tracker
}

// Registry holds all live and ended sessions for one process.
type Registry struct {
	logger      *zap.Logger
	pricing     *pricing.Table
	sessionOpts []session.Option

	mu           sync.RWMutex
	slots        map[string]*slot
	lifetimeCost float64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger, also passed to new trackers.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithPricing sets the pricing table for all sessions created here.
func WithPricing(t *pricing.Table) Option {
	return func(r *Registry) { r.pricing = t }
}

// WithSessionOptions appends extra options applied to every new tracker.
func WithSessionOptions(opts ...session.Option) Option {
	return func(r *Registry) { r.sessionOpts = append(r.sessionOpts, opts...) }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger: zap.NewNop(),
		slots:  make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pricing == nil {
		r.pricing = pricing.Default()
	}
	return r
}

// Create registers a new active session. An empty id gets a generated UUID.
// Fails with ErrDuplicateSession when the id is already registered, whether
// that session is live or ended.
func (r *Registry) Create(sessionID string) (*session.Tracker, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	opts := append([]session.Option{
		session.WithPricing(r.pricing),
		session.WithLogger(r.logger),
	}, r.sessionOpts...)
	tr := session.New(sessionID, opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.slots[sessionID]; exists {
		return nil, fmt.Errorf("create session %q: %w", sessionID, ErrDuplicateSession)
	}
	r.slots[sessionID] = &slot{tracker: tr}

	r.logger.Info("session created", zap.String("session_id", sessionID))
	return tr, nil
}

// Get returns the current value for a session.
func (r *Registry) Get(sessionID string) (*session.Tracker, error) {
	s, err := r.slot(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker, nil
}

func (r *Registry) slot(sessionID string) (*slot, error) {
	r.mu.RLock()
	s, ok := r.slots[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrUnknownSession)
	}
	return s, nil
}

// update applies fn to the session's current value and stores the result
// back under the slot lock.
func (r *Registry) update(sessionID string, fn func(*session.Tracker) (*session.Tracker, error)) (*session.Tracker, error) {
	s, err := r.slot(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.tracker)
	if err != nil {
		return nil, err
	}
	s.tracker = next
	return next, nil
}

// StartTask starts a task within a registered session.
func (r *Registry) StartTask(sessionID, taskID, modelID, category, level string) (*session.Tracker, error) {
	return r.update(sessionID, func(t *session.Tracker) (*session.Tracker, error) {
		return t.StartTask(taskID, modelID, category, level)
	})
}

// CompleteTask completes a task within a registered session and folds its
// cost into the lifetime counter.
func (r *Registry) CompleteTask(
	sessionID, taskID string,
	inputTokens, outputTokens int64,
	succeeded bool,
	errorMessage string,
	metrics *model.HierarchyMetrics,
) (*session.Tracker, error) {
	var delta float64
	next, err := r.update(sessionID, func(t *session.Tracker) (*session.Tracker, error) {
		before := t.TotalCost
		out, err := t.CompleteTask(taskID, inputTokens, outputTokens, succeeded, errorMessage, metrics)
		if err != nil {
			return nil, err
		}
		delta = out.TotalCost - before
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.lifetimeCost += delta
	r.mu.Unlock()
	return next, nil
}

// End freezes a registered session.
func (r *Registry) End(sessionID string) (*session.Tracker, error) {
	return r.update(sessionID, (*session.Tracker).End)
}

// LifetimeCost returns the cost accumulated across all sessions for the life
// of this registry.
func (r *Registry) LifetimeCost() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lifetimeCost
}

// Sessions returns the current value of every registered session.
func (r *Registry) Sessions() []*session.Tracker {
	r.mu.RLock()
	slots := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	out := make([]*session.Tracker, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, s.tracker)
		s.mu.Unlock()
	}
	return out
}

// ActiveCount returns how many registered sessions are still active.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, t := range r.Sessions() {
		if t.Active {
			n++
		}
	}
	return n
}
