package source

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeLog(t *testing.T, lines string) DiscoveredFile {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sess-1.jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return DiscoveredFile{Path: path, Project: "storefront", SessionID: "sess-1"}
}

func TestParseFileReplaysSession(t *testing.T) {
	df := writeLog(t, `{"type":"session_start","sessionId":"sess-1","timestamp":"2026-03-10T09:00:00Z"}
{"type":"task_start","taskId":"t1","model":"gpt-4o","category":"generation","level":"atom","timestamp":"2026-03-10T09:00:01Z"}
{"type":"task_complete","taskId":"t1","timestamp":"2026-03-10T09:00:03Z","usage":{"input_tokens":1000,"output_tokens":500},"succeeded":true,"metrics":{"reusability":8,"artifacts":["Button"]}}
{"type":"task_start","taskId":"t2","model":"gpt-4o","category":"generation","level":"molecule","timestamp":"2026-03-10T09:00:04Z"}
{"type":"task_complete","taskId":"t2","timestamp":"2026-03-10T09:00:06Z","usage":{"input_tokens":2000,"output_tokens":800},"succeeded":false,"error":"validation failed","metrics":{"complexity":5,"artifacts":["Card"]}}
{"type":"session_end","timestamp":"2026-03-10T09:00:10Z"}
`)

	pr := ParseFile(df, ParseOptions{})
	if pr.Err != nil {
		t.Fatalf("ParseFile: %v", pr.Err)
	}
	if pr.ParseErrors != 0 {
		t.Fatalf("ParseErrors = %d, want 0", pr.ParseErrors)
	}

	s := pr.Summary
	if s.SessionID != "sess-1" || s.Project != "storefront" {
		t.Fatalf("identity = %s/%s, want sess-1/storefront", s.SessionID, s.Project)
	}
	if s.Active {
		t.Fatal("session still active after session_end")
	}
	if s.CompletedCount != 2 {
		t.Fatalf("CompletedCount = %d, want 2", s.CompletedCount)
	}
	if s.SuccessRate != 0.5 {
		t.Fatalf("SuccessRate = %.2f, want 0.5", s.SuccessRate)
	}
	// gpt-4o: 1000 in @2.50 + 500 out @10.00 = 0.0075; 2000 in + 800 out = 0.013
	if math.Abs(s.TotalCost-0.0205) > 1e-9 {
		t.Fatalf("TotalCost = %.6f, want 0.0205", s.TotalCost)
	}
	if s.Health.BaseArtifacts != 1 || s.Health.CompositeArtifacts != 1 {
		t.Fatalf("health artifacts = %d/%d, want 1/1", s.Health.BaseArtifacts, s.Health.CompositeArtifacts)
	}
	if len(pr.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(pr.Tasks))
	}
	if pr.Tasks[0].TaskID != "t2" {
		t.Fatalf("most recent task = %s, want t2", pr.Tasks[0].TaskID)
	}
}

func TestParseFileCountsBadLines(t *testing.T) {
	df := writeLog(t, `{"type":"session_start","timestamp":"2026-03-10T09:00:00Z"}
not json at all
{"type":"task_complete","taskId":"ghost","timestamp":"2026-03-10T09:00:02Z","usage":{"input_tokens":10,"output_tokens":10}}
{"type":"task_start","taskId":"t1","model":"gpt-4o","category":"generation","timestamp":"2026-03-10T09:00:03Z"}
{"type":"task_start","taskId":"t1","model":"gpt-4o","category":"generation","timestamp":"2026-03-10T09:00:04Z"}
{"type":"task_complete","taskId":"t1","timestamp":"2026-03-10T09:00:05Z","usage":{"input_tokens":100,"output_tokens":50},"succeeded":true}
`)

	pr := ParseFile(df, ParseOptions{})
	if pr.Err != nil {
		t.Fatalf("ParseFile: %v", pr.Err)
	}
	// bad json + unknown-task completion + duplicate start
	if pr.ParseErrors != 3 {
		t.Fatalf("ParseErrors = %d, want 3", pr.ParseErrors)
	}
	if pr.Summary.CompletedCount != 1 {
		t.Fatalf("CompletedCount = %d, want 1", pr.Summary.CompletedCount)
	}
}

func TestParseFileWithoutStartMarker(t *testing.T) {
	df := writeLog(t, `{"type":"task_start","taskId":"t1","model":"gpt-4o-mini","category":"validation","timestamp":"2026-03-10T09:00:00Z"}
{"type":"task_complete","taskId":"t1","timestamp":"2026-03-10T09:00:01Z","usage":{"input_tokens":10,"output_tokens":0},"succeeded":true}
`)

	pr := ParseFile(df, ParseOptions{})
	if pr.Err != nil {
		t.Fatalf("ParseFile: %v", pr.Err)
	}
	if pr.ParseErrors != 0 {
		t.Fatalf("ParseErrors = %d, want 0", pr.ParseErrors)
	}
	if !pr.Summary.Active {
		t.Fatal("session without end marker should remain active")
	}
	if pr.Summary.CompletedCount != 1 {
		t.Fatalf("CompletedCount = %d, want 1", pr.Summary.CompletedCount)
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	mustWrite("sessions/storefront/aaa.jsonl")
	mustWrite("sessions/storefront/bbb.jsonl")
	mustWrite("sessions/marketing/ccc.jsonl")
	mustWrite("sessions/loose.jsonl")
	mustWrite("sessions/storefront/notes.txt") // ignored

	files, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("discovered %d files, want 4", len(files))
	}
	if CountProjects(files) != 3 { // storefront, marketing, default
		t.Fatalf("projects = %d, want 3", CountProjects(files))
	}

	byID := make(map[string]DiscoveredFile)
	for _, f := range files {
		byID[f.SessionID] = f
	}
	if byID["aaa"].Project != "storefront" {
		t.Fatalf("aaa project = %s, want storefront", byID["aaa"].Project)
	}
	if byID["loose"].Project != "default" {
		t.Fatalf("loose project = %s, want default", byID["loose"].Project)
	}

	empty, err := ScanDir(filepath.Join(dir, "does-not-exist"))
	if err != nil {
		t.Fatalf("ScanDir missing dir: %v", err)
	}
	if empty != nil {
		t.Fatalf("ScanDir missing dir = %v, want nil", empty)
	}
}
