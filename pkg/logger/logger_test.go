package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{"default", DefaultConfig(), false},
		{"json", &Config{Level: WarnLevel, Format: JSONFormat, Output: StdoutOutput}, false},
		{"unknown level", &Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"unknown format", &Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"unknown output", &Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
		{"file without path", &Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func newJSONLogger(t *testing.T, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := NewWithWriter(&Config{Level: level, Format: JSONFormat, Output: StderrOutput, DisableTimestamp: true}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_FieldsAccumulate(t *testing.T) {
	l, buf := newJSONLogger(t, InfoLevel)

	l.WithComponent("commit").
		WithField("owner", "owner-1").
		WithError(errors.New("boom")).
		Warn("step failed")
	l.Debug("filtered out")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %s", len(entries), buf.String())
	}
	entry := entries[0]
	for key, want := range map[string]string{
		"component": "commit",
		"owner":     "owner-1",
		"error":     "boom",
		"level":     "warning",
		"msg":       "step failed",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconciler.log")
	l, err := NewLogger(&Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput, File: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Info("written to file")
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.WithField("k", "v").Error("discarded")
}

func TestOperationLogger(t *testing.T) {
	l, buf := newJSONLogger(t, InfoLevel)

	op := NewOperationLogger("commit", l).WithField("owner", "owner-1")
	op.Step("snapshot", 5*time.Millisecond)
	op.StepFailed("clear-staging", false, errors.New("locked"))
	op.StepFailed("delete-ledger", true, errors.New("disk"))
	op.Success("Commit completed")

	entries := decodeLines(t, buf)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[1]["step"] != "snapshot" || entries[1]["operation"] != "commit" || entries[1]["owner"] != "owner-1" {
		t.Errorf("unexpected step entry %v", entries[1])
	}
	if entries[2]["level"] != "warning" || entries[2]["fatal"] != false {
		t.Errorf("soft failure should log at warn: %v", entries[2])
	}
	if entries[3]["level"] != "error" || entries[3]["fatal"] != true {
		t.Errorf("fatal failure should log at error: %v", entries[3])
	}
	if entries[4]["status"] != "success" {
		t.Errorf("unexpected success entry %v", entries[4])
	}
}

func TestProgressTracker(t *testing.T) {
	l, buf := newJSONLogger(t, InfoLevel)

	tracker := NewProgressTracker(ProgressConfig{
		Operation:   "match",
		Total:       4,
		LogInterval: time.Nanosecond,
		Logger:      l,
	})
	for i := 0; i < 3; i++ {
		tracker.Increment()
	}
	time.Sleep(time.Millisecond)
	tracker.Increment()
	tracker.Complete()

	if tracker.Current() != 4 {
		t.Errorf("expected 4 processed, got %d", tracker.Current())
	}
	entries := decodeLines(t, buf)
	if len(entries) == 0 {
		t.Fatal("expected progress entries")
	}
	last := entries[len(entries)-1]
	if last["percentage"] != "100.0%" {
		t.Errorf("expected final progress 100.0%%, got %v", last["percentage"])
	}
}

func TestGlobalLogger(t *testing.T) {
	previous := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(previous) })

	l, buf := newJSONLogger(t, InfoLevel)
	SetGlobalLogger(l)
	WithComponent("store").Infof("opened %s", "test.db")

	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["msg"] != "opened test.db" || entries[0]["component"] != "store" {
		t.Errorf("unexpected global entries %v", entries)
	}
}
