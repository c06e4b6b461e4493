package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return store
}

func testSession(id string, start time.Time) *Session {
	return &Session{
		ID:        id,
		URL:       "https://example.com",
		Viewport:  Viewport{Width: 1920, Height: 1080},
		StartTime: start,
		Status:    StatusRecording,
		Events:    []DOMEvent{},
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	want := testSession("s1", start)
	if err := store.Create(want); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get("s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got, *want) {
		t.Fatalf("round-trip mismatch:\n got %+v\nwant %+v", got, *want)
	}
}

func TestCreateDuplicate(t *testing.T) {
	store := newTestStore(t)
	start := time.Now().UTC()

	if err := store.Create(testSession("s1", start)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := store.Create(testSession("s1", start))
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	store := newTestStore(t)
	if err := store.Create(testSession("s1", time.Now().UTC())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	status := StatusProcessing
	if _, err := store.Update("s1", Update{Status: &status}); err != nil {
		t.Fatalf("Update status failed: %v", err)
	}

	videoPath := "x"
	if _, err := store.Update("s1", Update{VideoPath: &videoPath}); err != nil {
		t.Fatalf("Update video path failed: %v", err)
	}

	got, err := store.Get("s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusProcessing {
		t.Fatalf("expected status %q preserved, got %q", StatusProcessing, got.Status)
	}
	if got.VideoPath != "x" {
		t.Fatalf("expected video path %q, got %q", "x", got.VideoPath)
	}
}

func TestUpdateMissing(t *testing.T) {
	store := newTestStore(t)

	status := StatusProcessing
	if _, err := store.Update("nope", Update{Status: &status}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentUpdatesNotLost(t *testing.T) {
	store := newTestStore(t)
	if err := store.Create(testSession("s1", time.Now().UTC())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		status := StatusProcessing
		if _, err := store.Update("s1", Update{Status: &status}); err != nil {
			t.Errorf("Update status failed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		videoPath := "x"
		if _, err := store.Update("s1", Update{VideoPath: &videoPath}); err != nil {
			t.Errorf("Update video path failed: %v", err)
		}
	}()
	wg.Wait()

	got, err := store.Get("s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusProcessing || got.VideoPath != "x" {
		t.Fatalf("lost update: status=%q videoPath=%q", got.Status, got.VideoPath)
	}
}

func TestAppendEventsAssociative(t *testing.T) {
	events := []DOMEvent{
		{Type: "click", Timestamp: 100},
		{Type: "input", Timestamp: 200},
		{Type: "scroll", Timestamp: 300},
	}

	split := newTestStore(t)
	if err := split.Create(testSession("s1", time.Now().UTC())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := split.AppendEvents("s1", events[:2]); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}
	count, err := split.AppendEvents("s1", events[2:])
	if err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected event count 3, got %d", count)
	}

	whole := newTestStore(t)
	if err := whole.Create(testSession("s1", time.Now().UTC())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := whole.AppendEvents("s1", events); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}

	gotSplit, err := split.Get("s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	gotWhole, err := whole.Get("s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(gotSplit.Events, gotWhole.Events) {
		t.Fatalf("append not associative:\n split %+v\n whole %+v", gotSplit.Events, gotWhole.Events)
	}
}

func TestListOrderedByStartTimeDescending(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := store.Create(testSession(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if sessions[i].ID != want {
			t.Fatalf("expected session %d to be %q, got %q", i, want, sessions[i].ID)
		}
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	if err := store.Create(testSession("s1", time.Now().UTC())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	existed, err := store.Delete("s1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed {
		t.Fatal("expected delete to report the session existed")
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected empty list after delete, got %d sessions", len(sessions))
	}

	existed, err = store.Delete("s1")
	if err != nil {
		t.Fatalf("Delete of missing session failed: %v", err)
	}
	if existed {
		t.Fatal("expected delete of missing session to report it did not exist")
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store.Create(testSession("s1", time.Now().UTC())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, err := reopened.Get("s1"); err != nil {
		t.Fatalf("expected session to survive reopen: %v", err)
	}
}

func TestCorruptDocumentRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt document failed: %v", err)
	}

	if _, err := NewFileStore(path); err == nil {
		t.Fatal("expected error opening corrupt store document")
	}
}
