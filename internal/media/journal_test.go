package media

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(dir, "chunks.db"))
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalRecordAndPending(t *testing.T) {
	dir := t.TempDir()
	j := newTestJournal(t, dir)

	chunks := []Chunk{
		{Index: 1, Type: ChunkTypeVideo, Path: "/tmp/v1", Size: 10},
		{Index: 0, Type: ChunkTypeVideo, Path: "/tmp/v0", Size: 5},
		{Index: 0, Type: ChunkTypeAudio, Path: "/tmp/a0", Size: 3},
	}
	for _, c := range chunks {
		if err := j.Record("s1", c); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	pending, err := j.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}

	video := pending["s1"][ChunkTypeVideo]
	if len(video) != 2 || video[0].Index != 0 || video[1].Index != 1 {
		t.Fatalf("expected video chunks ordered by index, got %+v", video)
	}
	if len(pending["s1"][ChunkTypeAudio]) != 1 {
		t.Fatalf("expected one audio chunk, got %+v", pending["s1"][ChunkTypeAudio])
	}
}

func TestJournalRecordReplacesIndex(t *testing.T) {
	j := newTestJournal(t, t.TempDir())

	if err := j.Record("s1", Chunk{Index: 0, Type: ChunkTypeVideo, Path: "/tmp/first", Size: 1}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Record("s1", Chunk{Index: 0, Type: ChunkTypeVideo, Path: "/tmp/second", Size: 2}); err != nil {
		t.Fatalf("Record replacement failed: %v", err)
	}

	pending, err := j.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	video := pending["s1"][ChunkTypeVideo]
	if len(video) != 1 || video[0].Path != "/tmp/second" {
		t.Fatalf("expected replacement row, got %+v", video)
	}
}

func TestJournalClear(t *testing.T) {
	j := newTestJournal(t, t.TempDir())

	_ = j.Record("s1", Chunk{Index: 0, Type: ChunkTypeVideo, Path: "/tmp/v0", Size: 1})
	_ = j.Record("s1", Chunk{Index: 0, Type: ChunkTypeAudio, Path: "/tmp/a0", Size: 1})

	if err := j.Clear("s1", ChunkTypeVideo); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	pending, err := j.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending["s1"][ChunkTypeVideo]) != 0 {
		t.Fatal("expected video rows cleared")
	}
	if len(pending["s1"][ChunkTypeAudio]) != 1 {
		t.Fatal("expected audio rows untouched")
	}

	if err := j.ClearSession("s1"); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}
	pending, err = j.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty journal, got %+v", pending)
	}
}

func TestAggregatorRecoverFromJournal(t *testing.T) {
	dir := t.TempDir()
	journal := newTestJournal(t, dir)

	// First process: receive two chunks, then "crash" before merge.
	first := NewAggregator(dir, journal)
	saveChunk(t, first, "s1", ChunkTypeVideo, 0, "part0-")
	saveChunk(t, first, "s1", ChunkTypeVideo, 1, "part1")

	// Second process: recover pending set and merge.
	second := NewAggregator(dir, journal)
	recovered, err := second.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if recovered != 2 {
		t.Fatalf("expected 2 recovered chunks, got %d", recovered)
	}

	path, err := second.MergeChunks("s1", ChunkTypeVideo)
	if err != nil {
		t.Fatalf("MergeChunks after recovery failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact failed: %v", err)
	}
	if string(data) != "part0-part1" {
		t.Fatalf("artifact = %q, want %q", string(data), "part0-part1")
	}
}

func TestAggregatorRecoverSkipsMissingPayloads(t *testing.T) {
	dir := t.TempDir()
	journal := newTestJournal(t, dir)

	first := NewAggregator(dir, journal)
	kept := saveChunk(t, first, "s1", ChunkTypeVideo, 0, "kept")
	lost := saveChunk(t, first, "s1", ChunkTypeVideo, 1, "lost")
	if err := os.Remove(lost.Path); err != nil {
		t.Fatalf("remove payload failed: %v", err)
	}

	second := NewAggregator(dir, journal)
	recovered, err := second.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered chunk, got %d", recovered)
	}

	path, err := second.MergeChunks("s1", ChunkTypeVideo)
	if err != nil {
		t.Fatalf("MergeChunks failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact failed: %v", err)
	}
	if !strings.Contains(string(data), "kept") {
		t.Fatalf("expected surviving chunk content, got %q", string(data))
	}
	if _, err := os.Stat(kept.Path); !os.IsNotExist(err) {
		t.Fatal("expected surviving source chunk consumed by merge")
	}
}

func TestMergeNoChunksWithJournal(t *testing.T) {
	dir := t.TempDir()
	agg := NewAggregator(dir, newTestJournal(t, dir))

	if _, err := agg.MergeChunks("phantom", ChunkTypeAudio); !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}
}
