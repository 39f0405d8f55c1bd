package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelforge.io/internal/sim/world"
)

func readEvents(t *testing.T, path string) []world.Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []world.Event
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e world.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestEventLoggerRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	now := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return now }

	if err := l.WriteEvent(world.Event{Tick: 1, World: "overworld", Kind: world.EventJoin, Player: "p1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.WriteEvent(world.Event{Tick: 2, World: "overworld", Kind: world.EventChat, Player: "p1", Text: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := l.WriteEvent(world.Event{Tick: 3, World: "overworld", Kind: world.EventLeave, Player: "p1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readEvents(t, filepath.Join(dir, "events", "events-2024-05-01-10.jsonl.zst"))
	if len(first) != 2 || first[1].Text != "hi" {
		t.Fatalf("first hour = %+v", first)
	}
	second := readEvents(t, filepath.Join(dir, "events", "events-2024-05-01-11.jsonl.zst"))
	if len(second) != 1 || second[0].Kind != world.EventLeave {
		t.Fatalf("second hour = %+v", second)
	}
}

func TestWriterReopensAfterClose(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	w.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	for i := 0; i < 2; i++ {
		if err := w.Write(world.Event{Tick: uint64(i)}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	got := readEvents(t, filepath.Join(dir, "x-2024-01-01-00.jsonl.zst"))
	if len(got) != 2 {
		t.Fatalf("expected both appended frames, got %d", len(got))
	}
}
