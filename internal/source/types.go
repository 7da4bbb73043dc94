package source

// RawEvent represents a single line in a genmeter JSONL session log.
// Generation pipelines embedding the engine append one event per lifecycle
// transition.
type RawEvent struct {
	Type      string `json:"type"` // session_start | task_start | task_complete | session_end
	Timestamp string `json:"timestamp"`
	SessionID string `json:"sessionId,omitempty"`

	// Task events
	TaskID   string `json:"taskId,omitempty"`
	Model    string `json:"model,omitempty"`
	Category string `json:"category,omitempty"`
	Level    string `json:"level,omitempty"`

	// task_complete payload
	Usage     *RawUsage   `json:"usage,omitempty"`
	Succeeded *bool       `json:"succeeded,omitempty"`
	Error     string      `json:"error,omitempty"`
	Metrics   *RawMetrics `json:"metrics,omitempty"`
}

// RawUsage holds measured token counts for a completed task.
type RawUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// RawMetrics is the optional hierarchy payload on task_complete.
type RawMetrics struct {
	Reusability *float64 `json:"reusability,omitempty"`
	Complexity  *float64 `json:"complexity,omitempty"`
	DependsOn   []string `json:"dependsOn,omitempty"`
	Artifacts   []string `json:"artifacts,omitempty"`
}

// DiscoveredFile represents a JSONL session log found during scanning.
type DiscoveredFile struct {
	Path      string
	Project   string // parent directory name under sessions/
	SessionID string // file name without extension
}
