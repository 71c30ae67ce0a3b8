package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	events := []LogEvent{
		{Event: EventConnectStarted, Endpoint: "http://host:8080"},
		{Event: EventReconnectScheduled, Endpoint: "http://host:8080", Attempt: 2, DelayMs: 2000},
		{Event: EventTransferComplete, Path: "/tmp/artifact.apk", Bytes: 1024, DurationMs: 40},
	}
	for _, ev := range events {
		if err := logger.Append(ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].Event != EventConnectStarted || got[0].Endpoint != "http://host:8080" {
		t.Errorf("event 0 = %+v", got[0])
	}
	if got[1].Attempt != 2 || got[1].DelayMs != 2000 {
		t.Errorf("event 1 = %+v", got[1])
	}
	if got[2].Bytes != 1024 {
		t.Errorf("event 2 = %+v", got[2])
	}
}

func TestAppendSetsTime(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	before := time.Now().UTC().Add(-time.Second)
	if err := logger.Append(LogEvent{Event: EventConnected}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Time.Before(before) {
		t.Errorf("time not set on append: %v", got[0].Time)
	}
}

func TestReadAllMissingFile(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	got, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty slice for missing file, got %v", got)
	}
}

func TestAppendDoesNotTruncate(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventConnected}); err != nil {
		t.Fatal(err)
	}

	// A fresh Logger over the same directory appends, it never truncates.
	reopened, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := reopened.Append(LogEvent{Event: EventDisconnected}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".tether", "log.jsonl"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	got, err := reopened.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (file: %q)", len(got), data)
	}
}
