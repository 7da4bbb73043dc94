// Package source discovers and parses genmeter JSONL session logs, replaying
// recorded task events through the accounting engine.
package source

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pricing"
	"github.com/AngeloRai/genmeter/internal/session"
)

// ParseOptions configure a replay.
type ParseOptions struct {
	// PricingOverrides layer on top of the default pricing table.
	PricingOverrides map[string]pricing.Entry
	// Weights override the reusability-index coefficients; zero value uses
	// the defaults.
	Weights model.HealthWeights
	// BaseLevels override which hierarchy levels count as base; empty uses
	// the defaults.
	BaseLevels []string
}

// ParseResult holds the output of replaying a single session log.
type ParseResult struct {
	Summary analytics.Summary
	Tasks   []model.TaskRecord

	// ParseErrors counts malformed lines and lifecycle misuse inside the
	// log (duplicate ids, completions of unknown ids). Bad events are
	// skipped, not fatal.
	ParseErrors int
	Err         error
}

// ParseFile replays one JSONL session log through a fresh tracker and
// summarizes the result.
func ParseFile(df DiscoveredFile, opts ParseOptions) ParseResult {
	f, err := os.Open(df.Path)
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	table := pricing.NewTable(opts.PricingOverrides)
	sessionOpts := []session.Option{session.WithPricing(table)}
	if opts.Weights != (model.HealthWeights{}) {
		sessionOpts = append(sessionOpts, session.WithHealthWeights(opts.Weights))
	}
	if len(opts.BaseLevels) > 0 {
		sessionOpts = append(sessionOpts, session.WithBaseLevels(opts.BaseLevels))
	}

	var (
		tracker     *session.Tracker
		parseErrors int
		lastSeen    time.Time
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev RawEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			parseErrors++
			continue
		}

		ts, err := time.Parse(time.RFC3339Nano, ev.Timestamp)
		if err != nil {
			parseErrors++
			continue
		}
		if ts.After(lastSeen) {
			lastSeen = ts
		}

		if tracker == nil {
			// Logs should open with session_start; tolerate ones that
			// don't by anchoring the session at the first event.
			tracker = session.NewAt(df.SessionID, ts, sessionOpts...)
			if ev.Type == "session_start" {
				continue
			}
		}

		switch ev.Type {
		case "session_start":
			// Duplicate start marker inside the log.
			parseErrors++

		case "task_start":
			next, err := tracker.StartTaskAt(ev.TaskID, ev.Model, ev.Category, ev.Level, ts)
			if err != nil {
				parseErrors++
				continue
			}
			tracker = next

		case "task_complete":
			var in, out int64
			if ev.Usage != nil {
				in, out = ev.Usage.InputTokens, ev.Usage.OutputTokens
			}
			succeeded := ev.Succeeded == nil || *ev.Succeeded

			var metrics *model.HierarchyMetrics
			if ev.Metrics != nil {
				metrics = &model.HierarchyMetrics{
					Reusability: ev.Metrics.Reusability,
					Complexity:  ev.Metrics.Complexity,
					DependsOn:   ev.Metrics.DependsOn,
					Artifacts:   ev.Metrics.Artifacts,
				}
			}

			next, err := tracker.CompleteTaskAt(ev.TaskID, in, out, succeeded, ev.Error, metrics, ts)
			if err != nil {
				parseErrors++
				continue
			}
			tracker = next

		case "session_end":
			next, err := tracker.EndAt(ts)
			if err != nil {
				parseErrors++
				continue
			}
			tracker = next

		default:
			// Unknown event types are skipped so log formats can grow.
		}
	}

	if err := scanner.Err(); err != nil {
		return ParseResult{ParseErrors: parseErrors, Err: err}
	}
	if tracker == nil {
		return ParseResult{ParseErrors: parseErrors}
	}

	summary := analytics.SummarizeAt(tracker, lastSeen)
	summary.Project = df.Project

	return ParseResult{
		Summary:     summary,
		Tasks:       tracker.CompletedTasks(),
		ParseErrors: parseErrors,
	}
}
