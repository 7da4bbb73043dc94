// Package pricing maps model identifiers to per-million-token rates and
// computes per-task costs.
package pricing

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Entry holds per-million-token prices for one model.
type Entry struct {
	InputPerMTok  float64
	OutputPerMTok float64
	MaxTokens     int
}

// DefaultFallbackModel is the entry used when a model is not in the table.
const DefaultFallbackModel = "gpt-4o"

// DefaultEntries maps model base names to their pricing.
var DefaultEntries = map[string]Entry{
	"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00, MaxTokens: 16_384},
	"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60, MaxTokens: 16_384},
	"gpt-4-turbo":       {InputPerMTok: 10.00, OutputPerMTok: 30.00, MaxTokens: 4_096},
	"gpt-4.1":           {InputPerMTok: 2.00, OutputPerMTok: 8.00, MaxTokens: 32_768},
	"gpt-4.1-mini":      {InputPerMTok: 0.40, OutputPerMTok: 1.60, MaxTokens: 32_768},
	"o1":                {InputPerMTok: 15.00, OutputPerMTok: 60.00, MaxTokens: 100_000},
	"o1-mini":           {InputPerMTok: 1.10, OutputPerMTok: 4.40, MaxTokens: 65_536},
	"claude-sonnet-4-5": {InputPerMTok: 3.00, OutputPerMTok: 15.00, MaxTokens: 64_000},
	"claude-haiku-4-5":  {InputPerMTok: 1.00, OutputPerMTok: 5.00, MaxTokens: 64_000},
}

// Table is an immutable model → pricing mapping with a designated fallback.
type Table struct {
	entries       map[string]Entry
	fallback      Entry
	fallbackModel string

	logger *zap.Logger

	mu          sync.Mutex
	substituted map[string]struct{}
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger used to record fallback substitutions.
func WithLogger(l *zap.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// WithEntry adds or overrides a single model entry.
func WithEntry(model string, e Entry) Option {
	return func(t *Table) { t.entries[model] = e }
}

// WithFallback designates the entry used for unrecognized models.
func WithFallback(model string) Option {
	return func(t *Table) {
		if e, ok := t.entries[model]; ok {
			t.fallbackModel = model
			t.fallback = e
		}
	}
}

// NewTable builds a pricing table from the defaults plus any overrides.
// Passing a nil entries map uses the defaults unchanged.
func NewTable(entries map[string]Entry, opts ...Option) *Table {
	t := &Table{
		entries:     make(map[string]Entry, len(DefaultEntries)+len(entries)),
		logger:      zap.NewNop(),
		substituted: make(map[string]struct{}),
	}
	for m, e := range DefaultEntries {
		t.entries[m] = e
	}
	for m, e := range entries {
		t.entries[m] = e
	}
	t.fallbackModel = DefaultFallbackModel
	t.fallback = t.entries[DefaultFallbackModel]

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Default returns a table with the built-in entries only.
func Default() *Table {
	return NewTable(nil)
}

// NormalizeModelName strips date suffixes from model identifiers.
// e.g., "gpt-4o-2024-08-06" -> "gpt-4o"
func (t *Table) NormalizeModelName(raw string) string {
	if _, ok := t.entries[raw]; ok {
		return raw
	}

	// Models can carry date suffixes like -20250514 or -2024-08-06.
	// Strategy: strip trailing all-digit segments while a shorter prefix
	// matches the table.
	parts := strings.Split(raw, "-")
	for len(parts) >= 2 && isAllDigits(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
		candidate := strings.Join(parts, "-")
		if _, ok := t.entries[candidate]; ok {
			return candidate
		}
	}

	return raw
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Lookup returns the pricing for a model, normalizing the name first.
// Returns the zero entry and false if the model is unknown.
func (t *Table) Lookup(model string) (Entry, bool) {
	e, ok := t.entries[t.NormalizeModelName(model)]
	return e, ok
}

// Resolve returns the pricing for a model, falling back to the designated
// default entry when the model is unrecognized. The second return reports
// whether the fallback was substituted.
func (t *Table) Resolve(model string) (Entry, bool) {
	if e, ok := t.Lookup(model); ok {
		return e, false
	}

	t.mu.Lock()
	if _, seen := t.substituted[model]; !seen {
		t.substituted[model] = struct{}{}
		t.logger.Warn("unknown model, using fallback pricing",
			zap.String("model", model),
			zap.String("fallback", t.fallbackModel),
		)
	}
	t.mu.Unlock()

	return t.fallback, true
}

// Substituted returns the sorted set of model names that have fallen back to
// the default entry since the table was built.
func (t *Table) Substituted() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.substituted) == 0 {
		return nil
	}
	models := make([]string, 0, len(t.substituted))
	for m := range t.substituted {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Cost computes input and output cost in USD for one completed task.
func (e Entry) Cost(inputTokens, outputTokens int64) (inputCost, outputCost float64) {
	inputCost = float64(inputTokens) * e.InputPerMTok / 1_000_000
	outputCost = float64(outputTokens) * e.OutputPerMTok / 1_000_000
	return inputCost, outputCost
}
