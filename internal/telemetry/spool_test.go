package telemetry

import (
	"path/filepath"
	"testing"

	"chief/pkg/telemetry"
)

func TestSpoolFile_AppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.jsonl")
	sf, err := openSpoolFile(path)
	if err != nil {
		t.Fatalf("openSpoolFile: %v", err)
	}

	events := []telemetry.Event{sampleEvent("a"), sampleEvent("b")}
	if err := sf.appendBatch(events); err != nil {
		t.Fatalf("appendBatch: %v", err)
	}

	read, err := sf.readAll()
	if err != nil {
		t.Fatalf("readAll: %v", err)
	}
	if len(read) != 2 {
		t.Fatalf("expected 2 events, got %d", len(read))
	}
	if read[0].JobName != "a" || read[1].JobName != "b" {
		t.Errorf("unexpected order: %+v", read)
	}
}

func TestSpoolFile_MarkSentTruncatesPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.jsonl")
	sf, err := openSpoolFile(path)
	if err != nil {
		t.Fatalf("openSpoolFile: %v", err)
	}

	events := []telemetry.Event{sampleEvent("a"), sampleEvent("b"), sampleEvent("c")}
	if err := sf.appendBatch(events); err != nil {
		t.Fatalf("appendBatch: %v", err)
	}
	if err := sf.markSent(2); err != nil {
		t.Fatalf("markSent: %v", err)
	}

	remaining, err := sf.readAll()
	if err != nil {
		t.Fatalf("readAll: %v", err)
	}
	if len(remaining) != 1 || remaining[0].JobName != "c" {
		t.Fatalf("expected only 'c' to remain, got %+v", remaining)
	}
}

func TestSpoolFile_ReadAllOnMissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.jsonl")
	sf := &spoolFile{path: path}
	events, err := sf.readAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}
