package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDetachArgs(t *testing.T) {
	args := []string{"daemon", "--detach", "--addr", "127.0.0.1:9999", "--detach=true"}

	got := detachArgs(args)
	want := []string{"daemon", "--addr", "127.0.0.1:9999"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("detachArgs = %v, want %v", got, want)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genmeterd.pid")

	if err := writePID(path, 4242); err != nil {
		t.Fatalf("writePID: %v", err)
	}
	pid, err := readPID(path)
	if err != nil {
		t.Fatalf("readPID: %v", err)
	}
	if pid != 4242 {
		t.Fatalf("pid = %d, want 4242", pid)
	}
}

func TestReadPIDRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genmeterd.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := readPID(path); err == nil {
		t.Fatal("readPID accepted a garbage pid file")
	}
}

func TestEnsureDaemonNotRunningMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genmeterd.pid")

	if err := ensureDaemonNotRunning(path); err != nil {
		t.Fatalf("ensureDaemonNotRunning: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file unexpectedly present: %v", err)
	}
}
