package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestLoggerWritesCompressedJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	l.w.now = func() time.Time { return fixed }

	entries := []Entry{
		{RunID: "r1", Time: fixed, User: "steve", Block: "chat(hi)", State: "completed",
			Calls: []Call{{Verb: "chat", Args: []string{"hi"}, Result: "ok"}}},
		{RunID: "r2", Time: fixed, User: "alex", Block: "rm(-rf)", State: "failed", Error: "unknown action rm"},
	}
	for _, e := range entries {
		if err := l.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readEntries(t, filepath.Join(dir, "actions-2026-03-04-05.jsonl.zst"))
	if len(got) != 2 {
		t.Fatalf("entries: got %d", len(got))
	}
	if got[0].RunID != "r1" || len(got[0].Calls) != 1 || got[0].Calls[0].Verb != "chat" {
		t.Fatalf("entry 0: %+v", got[0])
	}
	if got[1].State != "failed" || got[1].Error == "" {
		t.Fatalf("entry 1: %+v", got[1])
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.WriteEntry(Entry{RunID: "x"}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
