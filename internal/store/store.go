// Package store provides SQLite-backed persistence for parsed session
// summaries and their task audit trails.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Store wraps the session database.
type Store struct {
	db *sql.DB
}

// StoredSession pairs a persisted summary with its source log path.
type StoredSession struct {
	Summary  analytics.Summary
	FilePath string
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FileInfo holds the tracked mtime and size for a session log.
type FileInfo struct {
	MtimeNs   int64
	SizeBytes int64
}

// GetTrackedFiles returns file_path -> FileInfo for all tracked logs.
func (s *Store) GetTrackedFiles() (map[string]FileInfo, error) {
	rows, err := s.db.Query("SELECT file_path, mtime_ns, size_bytes FROM file_tracker")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]FileInfo)
	for rows.Next() {
		var path string
		var fi FileInfo
		if err := rows.Scan(&path, &fi.MtimeNs, &fi.SizeBytes); err != nil {
			return nil, err
		}
		result[path] = fi
	}
	return result, rows.Err()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalList(list []string) string {
	if len(list) == 0 {
		return ""
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func unmarshalList(s string) []string {
	if s == "" {
		return nil
	}
	var list []string
	_ = json.Unmarshal([]byte(s), &list)
	return list
}

// SaveSession stores a parsed session, its rollups, level stats, task audit
// rows, and file tracking info in one transaction.
func (s *Store) SaveSession(sum analytics.Summary, tasks []model.TaskRecord, filePath string, mtimeNs, sizeBytes int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.Exec(`INSERT OR REPLACE INTO sessions
		(session_id, project, file_path, started_at, ended_at, active,
		 task_count, completed_count, pending_count,
		 total_cost, total_tokens, success_rate,
		 cost_per_second, tokens_per_second, avg_task_duration_ms,
		 base_artifacts, composite_artifacts, base_ratio, reusability_index,
		 substituted_models, file_mtime_ns, file_size, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.SessionID, sum.Project, filePath, fmtTime(sum.StartedAt), fmtTime(sum.EndedAt), boolToInt(sum.Active),
		sum.TaskCount, sum.CompletedCount, sum.PendingCount,
		sum.TotalCost, sum.TotalTokens, sum.SuccessRate,
		sum.Efficiency.CostPerSecond, sum.Efficiency.TokensPerSecond, sum.Efficiency.AvgTaskDurationMs,
		sum.Health.BaseArtifacts, sum.Health.CompositeArtifacts, sum.Health.BaseRatio, sum.Health.ReusabilityIndex,
		strings.Join(sum.SubstitutedModels, ","), mtimeNs, sizeBytes, now,
	)
	if err != nil {
		return err
	}

	// Replace child rows wholesale; upserting them piecemeal is not worth it.
	for _, table := range []string{"session_rollups", "session_levels", "session_tasks"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE session_id = ?", sum.SessionID); err != nil {
			return err
		}
	}

	for dimension, rollup := range map[string]map[string]model.RollupBucket{
		"model":    sum.ByModel,
		"category": sum.ByCategory,
		"level":    sum.ByLevel,
	} {
		for key, b := range rollup {
			_, err := tx.Exec(`INSERT INTO session_rollups
				(session_id, dimension, bucket_key, task_count, success_count, failure_count,
				 total_cost, total_tokens, total_duration_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sum.SessionID, dimension, key, b.TaskCount, b.SuccessCount, b.FailureCount,
				b.TotalCost, b.TotalTokens, b.TotalDurationMs,
			)
			if err != nil {
				return err
			}
		}
	}

	for level, ls := range sum.Health.Levels {
		_, err := tx.Exec(`INSERT INTO session_levels
			(session_id, level, tasks, artifacts, avg_reusability, reuse_artifacts,
			 avg_complexity, complexity_artifacts, total_cost, cost_per_artifact)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.SessionID, level, ls.Tasks, ls.Artifacts, ls.AvgReusability, ls.ReuseArtifacts,
			ls.AvgComplexity, ls.ComplexityArtifacts, ls.TotalCost, ls.CostPerArtifact,
		)
		if err != nil {
			return err
		}
	}

	for _, task := range tasks {
		var reuse, complexity any
		if task.Reusability != nil {
			reuse = *task.Reusability
		}
		if task.Complexity != nil {
			complexity = *task.Complexity
		}
		_, err := tx.Exec(`INSERT INTO session_tasks
			(session_id, task_id, model, category, level, started_at, completed_at,
			 duration_ms, input_tokens, output_tokens, input_cost, output_cost, total_cost,
			 succeeded, error, substituted, reusability, complexity, depends_on, artifacts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.SessionID, task.TaskID, task.Model, task.Category, task.Level,
			fmtTime(task.StartedAt), fmtTime(task.CompletedAt),
			task.DurationMs, task.InputTokens, task.OutputTokens,
			task.InputCost, task.OutputCost, task.TotalCost,
			boolToInt(task.Succeeded), task.ErrorMessage, boolToInt(task.Substituted),
			reuse, complexity, marshalList(task.DependsOn), marshalList(task.Artifacts),
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO file_tracker (file_path, mtime_ns, size_bytes)
		VALUES (?, ?, ?)`, filePath, mtimeNs, sizeBytes)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// LoadAllSessions reads every stored session summary, including rollups and
// per-level health stats.
func (s *Store) LoadAllSessions() ([]StoredSession, error) {
	rows, err := s.db.Query(`SELECT
		session_id, project, file_path, started_at, ended_at, active,
		task_count, completed_count, pending_count,
		total_cost, total_tokens, success_rate,
		cost_per_second, tokens_per_second, avg_task_duration_ms,
		base_artifacts, composite_artifacts, base_ratio, reusability_index,
		substituted_models
		FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []StoredSession
	for rows.Next() {
		var ss StoredSession
		sum := &ss.Summary
		var startStr, endStr, subs string
		var active int

		err := rows.Scan(
			&sum.SessionID, &sum.Project, &ss.FilePath, &startStr, &endStr, &active,
			&sum.TaskCount, &sum.CompletedCount, &sum.PendingCount,
			&sum.TotalCost, &sum.TotalTokens, &sum.SuccessRate,
			&sum.Efficiency.CostPerSecond, &sum.Efficiency.TokensPerSecond, &sum.Efficiency.AvgTaskDurationMs,
			&sum.Health.BaseArtifacts, &sum.Health.CompositeArtifacts, &sum.Health.BaseRatio, &sum.Health.ReusabilityIndex,
			&subs,
		)
		if err != nil {
			return nil, err
		}

		sum.StartedAt = parseTime(startStr)
		sum.EndedAt = parseTime(endStr)
		sum.Active = active != 0
		if subs != "" {
			sum.SubstitutedModels = strings.Split(subs, ",")
		}
		sum.ByModel = make(map[string]model.RollupBucket)
		sum.ByCategory = make(map[string]model.RollupBucket)
		sum.ByLevel = make(map[string]model.RollupBucket)
		sum.Health.Levels = make(map[string]model.LevelStats)

		sessions = append(sessions, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(sessions))
	for i, ss := range sessions {
		idx[ss.Summary.SessionID] = i
	}

	if err := s.loadRollups(sessions, idx); err != nil {
		return nil, err
	}
	if err := s.loadLevels(sessions, idx); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (s *Store) loadRollups(sessions []StoredSession, idx map[string]int) error {
	rows, err := s.db.Query(`SELECT
		session_id, dimension, bucket_key, task_count, success_count, failure_count,
		total_cost, total_tokens, total_duration_ms
		FROM session_rollups`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sid, dimension, key string
		var b model.RollupBucket
		err := rows.Scan(&sid, &dimension, &key, &b.TaskCount, &b.SuccessCount, &b.FailureCount,
			&b.TotalCost, &b.TotalTokens, &b.TotalDurationMs)
		if err != nil {
			return err
		}
		i, ok := idx[sid]
		if !ok {
			continue
		}

		b.Key = key
		if b.TaskCount > 0 {
			n := float64(b.TaskCount)
			b.AvgCost = b.TotalCost / n
			b.AvgTokens = float64(b.TotalTokens) / n
			b.AvgDurationMs = float64(b.TotalDurationMs) / n
		}

		switch dimension {
		case "model":
			sessions[i].Summary.ByModel[key] = b
		case "category":
			sessions[i].Summary.ByCategory[key] = b
		case "level":
			sessions[i].Summary.ByLevel[key] = b
		}
	}
	return rows.Err()
}

func (s *Store) loadLevels(sessions []StoredSession, idx map[string]int) error {
	rows, err := s.db.Query(`SELECT
		session_id, level, tasks, artifacts, avg_reusability, reuse_artifacts,
		avg_complexity, complexity_artifacts, total_cost, cost_per_artifact
		FROM session_levels`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sid string
		var ls model.LevelStats
		err := rows.Scan(&sid, &ls.Level, &ls.Tasks, &ls.Artifacts, &ls.AvgReusability, &ls.ReuseArtifacts,
			&ls.AvgComplexity, &ls.ComplexityArtifacts, &ls.TotalCost, &ls.CostPerArtifact)
		if err != nil {
			return err
		}
		if i, ok := idx[sid]; ok {
			sessions[i].Summary.Health.Levels[ls.Level] = ls
		}
	}
	return rows.Err()
}

// LoadTasks reads the task audit trail for one session, most recently
// completed first.
func (s *Store) LoadTasks(sessionID string) ([]model.TaskRecord, error) {
	rows, err := s.db.Query(`SELECT
		task_id, model, category, level, started_at, completed_at,
		duration_ms, input_tokens, output_tokens, input_cost, output_cost, total_cost,
		succeeded, error, substituted, reusability, complexity, depends_on, artifacts
		FROM session_tasks WHERE session_id = ?
		ORDER BY completed_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []model.TaskRecord
	for rows.Next() {
		var t model.TaskRecord
		var startStr, endStr, dependsOn, artifacts string
		var succeeded, substituted int
		var reuse, complexity sql.NullFloat64

		err := rows.Scan(
			&t.TaskID, &t.Model, &t.Category, &t.Level, &startStr, &endStr,
			&t.DurationMs, &t.InputTokens, &t.OutputTokens, &t.InputCost, &t.OutputCost, &t.TotalCost,
			&succeeded, &t.ErrorMessage, &substituted, &reuse, &complexity, &dependsOn, &artifacts,
		)
		if err != nil {
			return nil, err
		}

		t.StartedAt = parseTime(startStr)
		t.CompletedAt = parseTime(endStr)
		t.Succeeded = succeeded != 0
		t.Substituted = substituted != 0
		if reuse.Valid {
			v := reuse.Float64
			t.Reusability = &v
		}
		if complexity.Valid {
			v := complexity.Float64
			t.Complexity = &v
		}
		t.DependsOn = unmarshalList(dependsOn)
		t.Artifacts = unmarshalList(artifacts)

		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteSession removes a session and its child rows.
func (s *Store) DeleteSession(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE session_id = ?", sessionID)
	return err
}

// DeleteFileTracker removes a file tracking entry.
func (s *Store) DeleteFileTracker(filePath string) error {
	_, err := s.db.Exec("DELETE FROM file_tracker WHERE file_path = ?", filePath)
	return err
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}
