package media

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benwaters/screenloom/internal/storage"
)

func saveChunk(t *testing.T, agg *Aggregator, sessionID, chunkType string, index int, payload string) Chunk {
	t.Helper()
	chunk, err := agg.SaveChunk(sessionID, chunkType, index, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("SaveChunk %s[%d] failed: %v", chunkType, index, err)
	}
	return chunk
}

func TestMergeChunksOrdersByIndex(t *testing.T) {
	arrivals := [][]int{
		{0, 1, 2},
		{2, 0, 1},
		{1, 2, 0},
	}
	payloads := []string{"alpha-", "bravo-", "charlie"}

	for _, order := range arrivals {
		agg := NewAggregator(t.TempDir(), nil)
		for _, idx := range order {
			saveChunk(t, agg, "s1", ChunkTypeVideo, idx, payloads[idx])
		}

		path, err := agg.MergeChunks("s1", ChunkTypeVideo)
		if err != nil {
			t.Fatalf("MergeChunks failed for arrival order %v: %v", order, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read artifact failed: %v", err)
		}
		if got, want := string(data), "alpha-bravo-charlie"; got != want {
			t.Fatalf("arrival order %v: artifact = %q, want %q", order, got, want)
		}
	}
}

func TestMergeChunksDeletesSources(t *testing.T) {
	agg := NewAggregator(t.TempDir(), nil)
	c0 := saveChunk(t, agg, "s1", ChunkTypeAudio, 0, "one")
	c1 := saveChunk(t, agg, "s1", ChunkTypeAudio, 1, "two")

	if _, err := agg.MergeChunks("s1", ChunkTypeAudio); err != nil {
		t.Fatalf("MergeChunks failed: %v", err)
	}

	for _, p := range []string{c0.Path, c1.Path} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected source chunk %s to be deleted", p)
		}
	}
}

func TestMergeSingleChunkIsRename(t *testing.T) {
	agg := NewAggregator(t.TempDir(), nil)
	chunk := saveChunk(t, agg, "s1", ChunkTypeVideo, 0, "solo")

	path, err := agg.MergeChunks("s1", ChunkTypeVideo)
	if err != nil {
		t.Fatalf("MergeChunks failed: %v", err)
	}
	if filepath.Base(path) != "video.webm" {
		t.Fatalf("expected artifact video.webm, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact failed: %v", err)
	}
	if string(data) != "solo" {
		t.Fatalf("artifact = %q, want %q", string(data), "solo")
	}
	if _, err := os.Stat(chunk.Path); !os.IsNotExist(err) {
		t.Fatal("expected source chunk to be moved, not copied")
	}
}

func TestMergeNoChunks(t *testing.T) {
	dir := t.TempDir()
	agg := NewAggregator(dir, nil)

	if _, err := agg.MergeChunks("s1", ChunkTypeVideo); !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}

	// No session directory or artifact may appear from a failed merge.
	if _, err := os.Stat(filepath.Join(dir, "s1")); !os.IsNotExist(err) {
		t.Fatal("expected no disk writes for empty merge")
	}
}

func TestRemergeYieldsNoChunks(t *testing.T) {
	agg := NewAggregator(t.TempDir(), nil)
	saveChunk(t, agg, "s1", ChunkTypeVideo, 0, "data")

	if _, err := agg.MergeChunks("s1", ChunkTypeVideo); err != nil {
		t.Fatalf("MergeChunks failed: %v", err)
	}
	if _, err := agg.MergeChunks("s1", ChunkTypeVideo); !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks on re-merge, got %v", err)
	}
}

func TestFailedMergeRetracksSurvivingChunks(t *testing.T) {
	agg := NewAggregator(t.TempDir(), nil)
	first := saveChunk(t, agg, "s1", ChunkTypeVideo, 0, "first-")
	saveChunk(t, agg, "s1", ChunkTypeVideo, 1, "second-")
	saveChunk(t, agg, "s1", ChunkTypeVideo, 2, "third")

	// Knock out the first source so the concat fails before consuming
	// anything.
	if err := os.Remove(first.Path); err != nil {
		t.Fatalf("remove chunk: %v", err)
	}
	if _, err := agg.MergeChunks("s1", ChunkTypeVideo); err == nil {
		t.Fatal("expected merge to fail with a missing source chunk")
	}

	saveChunk(t, agg, "s1", ChunkTypeVideo, 0, "first-")
	path, err := agg.MergeChunks("s1", ChunkTypeVideo)
	if err != nil {
		t.Fatalf("retry merge failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "first-second-third" {
		t.Fatalf("artifact = %q, want all chunks after retry", string(data))
	}
}

func TestMergeKeepsOtherTypePending(t *testing.T) {
	agg := NewAggregator(t.TempDir(), nil)
	saveChunk(t, agg, "s1", ChunkTypeVideo, 0, "vid")
	saveChunk(t, agg, "s1", ChunkTypeAudio, 0, "aud")

	if _, err := agg.MergeChunks("s1", ChunkTypeVideo); err != nil {
		t.Fatalf("MergeChunks video failed: %v", err)
	}
	if _, err := agg.MergeChunks("s1", ChunkTypeAudio); err != nil {
		t.Fatalf("expected audio chunks untouched by video merge: %v", err)
	}
}

func TestSaveEventSnapshot(t *testing.T) {
	agg := NewAggregator(t.TempDir(), nil)

	path, err := agg.SaveEventSnapshot("s1", []storage.DOMEvent{
		{Type: "click", Timestamp: 1000},
	})
	if err != nil {
		t.Fatalf("SaveEventSnapshot failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot failed: %v", err)
	}
	if !strings.Contains(string(data), `"click"`) {
		t.Fatalf("expected snapshot to contain event type, got %s", string(data))
	}
}

func TestRemoveSessionDir(t *testing.T) {
	agg := NewAggregator(t.TempDir(), nil)
	saveChunk(t, agg, "s1", ChunkTypeVideo, 0, "data")

	if err := agg.RemoveSessionDir("s1"); err != nil {
		t.Fatalf("RemoveSessionDir failed: %v", err)
	}
	if _, err := os.Stat(agg.SessionDir("s1")); !os.IsNotExist(err) {
		t.Fatal("expected session directory removed")
	}
	if _, err := agg.MergeChunks("s1", ChunkTypeVideo); !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected tracking cleared after removal, got %v", err)
	}
}

func TestRejectsTraversalSessionID(t *testing.T) {
	agg := NewAggregator(t.TempDir(), nil)

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		if _, err := agg.EnsureSessionDir(id); !errors.Is(err, ErrInvalidSessionID) {
			t.Fatalf("expected ErrInvalidSessionID for %q, got %v", id, err)
		}
	}
}
