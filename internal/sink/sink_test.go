package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_ResumesPartNumberingAfterRestart(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"orderbooks.part-0000.jsonl", "orderbooks.part-0007.jsonl"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}

	s, err := Open(dir, "orderbooks", DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Write(map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "orderbooks.part-0008.jsonl")); err != nil {
		t.Errorf("expected part-0008 to exist: %v", err)
	}
	for _, untouched := range []string{"orderbooks.part-0000.jsonl", "orderbooks.part-0007.jsonl"} {
		data, err := os.ReadFile(filepath.Join(dir, untouched))
		if err != nil {
			t.Fatalf("read %s: %v", untouched, err)
		}
		if string(data) != "{}\n" {
			t.Errorf("%s was modified: %q", untouched, data)
		}
	}
}

func TestWrite_RotatesOnElapsedInterval(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{RotateInterval: 1 * time.Millisecond, FlushInterval: time.Hour}
	s, err := Open(dir, "markets", cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("Write 2: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "markets.part-0001.jsonl")); err != nil {
		t.Errorf("expected rotation to part-0001: %v", err)
	}
}

func TestWrite_LineDelimitedJSON(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "poll_stats", DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	records := []map[string]int{{"a": 1}, {"a": 2}, {"a": 3}}
	for _, r := range records {
		if err := s.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "poll_stats.part-0000.jsonl"))
	if err != nil {
		t.Fatalf("open part: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var got []map[string]int
	for scanner.Scan() {
		var rec map[string]int
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d lines, want %d", len(got), len(records))
	}
}

func TestClose_Idempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "poll_errors", DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestWrite_AfterCloseErrors(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "orderbooks", DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Write(map[string]int{"a": 1}); err == nil {
		t.Error("Write after Close: got nil error, want error")
	}
}
