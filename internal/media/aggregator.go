package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benwaters/screenloom/internal/storage"
)

const (
	ChunkTypeVideo = "video"
	ChunkTypeAudio = "audio"
)

var (
	// ErrNoChunks is returned by MergeChunks when nothing is tracked for
	// the session/type pair.
	ErrNoChunks = errors.New("no chunks tracked")
	// ErrInvalidSessionID rejects ids that could escape the recordings tree.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Chunk describes one uploaded media fragment on disk.
type Chunk struct {
	Index int
	Type  string
	Path  string
	Size  int64
}

// Aggregator tracks per-session, per-type chunk uploads and merges them into
// one artifact per media type. Tracking is in memory, optionally journaled to
// disk so pending sets survive a restart. No contiguity or size validation is
// done here; the uploader is authoritative about the last chunk.
type Aggregator struct {
	baseDir string
	journal *Journal

	mu      sync.Mutex
	pending map[string]map[string][]Chunk
}

func NewAggregator(baseDir string, journal *Journal) *Aggregator {
	if baseDir == "" {
		baseDir = filepath.Join("data", "recordings")
	}
	return &Aggregator{
		baseDir: baseDir,
		journal: journal,
		pending: make(map[string]map[string][]Chunk),
	}
}

// Recover reloads pending chunk sets from the journal. Call once at startup,
// before any uploads are accepted.
func (a *Aggregator) Recover() (int, error) {
	if a.journal == nil {
		return 0, nil
	}

	pending, err := a.journal.Pending()
	if err != nil {
		return 0, fmt.Errorf("recover pending chunks: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for sessionID, byType := range pending {
		for typ, chunks := range byType {
			for _, c := range chunks {
				// Skip chunks whose payload file is gone.
				if _, statErr := os.Stat(c.Path); statErr != nil {
					continue
				}
				a.track(sessionID, typ, c)
				count++
			}
		}
	}

	return count, nil
}

// EnsureSessionDir idempotently creates the on-disk location for a session
// and returns its path.
func (a *Aggregator) EnsureSessionDir(sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}

	dir := filepath.Join(a.baseDir, sessionID)
	if err := os.MkdirAll(filepath.Join(dir, "chunks"), 0o755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}
	return dir, nil
}

// SessionDir returns the session's directory without creating it.
func (a *Aggregator) SessionDir(sessionID string) string {
	return filepath.Join(a.baseDir, sessionID)
}

// SaveChunk writes a chunk payload to disk and tracks its descriptor.
// A re-upload of the same index replaces the tracked descriptor.
func (a *Aggregator) SaveChunk(sessionID, chunkType string, index int, payload io.Reader) (Chunk, error) {
	dir, err := a.EnsureSessionDir(sessionID)
	if err != nil {
		return Chunk{}, err
	}

	path := filepath.Join(dir, "chunks", fmt.Sprintf("%s_%05d.part", chunkType, index))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Chunk{}, fmt.Errorf("create chunk file: %w", err)
	}

	size, err := io.Copy(f, payload)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return Chunk{}, fmt.Errorf("write chunk file: %w", err)
	}

	chunk := Chunk{Index: index, Type: chunkType, Path: path, Size: size}
	a.AddChunk(sessionID, chunk)
	return chunk, nil
}

// AddChunk records a chunk descriptor, keeping the set sorted by index.
func (a *Aggregator) AddChunk(sessionID string, chunk Chunk) {
	a.mu.Lock()
	a.track(sessionID, chunk.Type, chunk)
	a.mu.Unlock()

	if a.journal != nil {
		if err := a.journal.Record(sessionID, chunk); err != nil {
			// Journal is recovery insurance only; the in-memory set is
			// still authoritative for this process.
			log.Printf("warning: chunk journal record failed: %v", err)
		}
	}
}

// MergeChunks concatenates all tracked chunks for the session/type in index
// order into one artifact and deletes each source as it is consumed. The
// single-chunk case is a rename. After success the tracked set is cleared,
// so a re-merge yields ErrNoChunks.
func (a *Aggregator) MergeChunks(sessionID, chunkType string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}

	a.mu.Lock()
	chunks := a.take(sessionID, chunkType)
	a.mu.Unlock()

	if len(chunks) == 0 {
		return "", fmt.Errorf("merge %s chunks for session %s: %w", chunkType, sessionID, ErrNoChunks)
	}

	outPath := filepath.Join(a.SessionDir(sessionID), artifactName(chunkType))

	var err error
	if len(chunks) == 1 {
		err = os.Rename(chunks[0].Path, outPath)
	} else {
		err = concatChunks(outPath, chunks)
	}
	if err != nil {
		// The tracked set only clears on success. Re-track whatever
		// sources survived so the upload can be retried.
		a.mu.Lock()
		for _, chunk := range chunks {
			if _, statErr := os.Stat(chunk.Path); statErr == nil {
				a.track(sessionID, chunkType, chunk)
			}
		}
		a.mu.Unlock()
		return "", fmt.Errorf("merge %s chunks for session %s: %w", chunkType, sessionID, err)
	}

	if a.journal != nil {
		if jerr := a.journal.Clear(sessionID, chunkType); jerr != nil {
			log.Printf("warning: chunk journal clear failed: %v", jerr)
		}
	}

	return outPath, nil
}

// SaveEventSnapshot writes a timestamped backup of DOM events alongside the
// media artifacts. The authoritative copy lives in the session store; this
// exists for forensic recovery if the store is ever corrupted.
func (a *Aggregator) SaveEventSnapshot(sessionID string, events []storage.DOMEvent) (string, error) {
	dir, err := a.EnsureSessionDir(sessionID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal event snapshot: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("events-%s.json", time.Now().UTC().Format("20060102150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write event snapshot: %w", err)
	}

	return path, nil
}

// RemoveSessionDir drops tracking for the session and deletes its directory.
// Cleanup is best effort; a merge racing with deletion may leave orphans.
func (a *Aggregator) RemoveSessionDir(sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	a.mu.Lock()
	delete(a.pending, sessionID)
	a.mu.Unlock()

	if a.journal != nil {
		if err := a.journal.ClearSession(sessionID); err != nil {
			log.Printf("warning: chunk journal clear failed: %v", err)
		}
	}

	if err := os.RemoveAll(a.SessionDir(sessionID)); err != nil {
		return fmt.Errorf("remove session directory: %w", err)
	}
	return nil
}

func (a *Aggregator) track(sessionID, chunkType string, chunk Chunk) {
	byType, ok := a.pending[sessionID]
	if !ok {
		byType = make(map[string][]Chunk)
		a.pending[sessionID] = byType
	}

	chunks := byType[chunkType]
	for i := range chunks {
		if chunks[i].Index == chunk.Index {
			chunks[i] = chunk
			return
		}
	}

	chunks = append(chunks, chunk)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	byType[chunkType] = chunks
}

func (a *Aggregator) take(sessionID, chunkType string) []Chunk {
	byType, ok := a.pending[sessionID]
	if !ok {
		return nil
	}
	chunks := byType[chunkType]
	delete(byType, chunkType)
	if len(byType) == 0 {
		delete(a.pending, sessionID)
	}
	return chunks
}

// concatChunks appends every chunk payload to outPath in order, removing
// each source after it is consumed. A failure partway leaves the output
// truncated; already-deleted sources are not restored.
func concatChunks(outPath string, chunks []Chunk) error {
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}

	for _, chunk := range chunks {
		src, err := os.Open(chunk.Path)
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("open chunk %d: %w", chunk.Index, err)
		}

		_, err = io.Copy(out, src)
		_ = src.Close()
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("append chunk %d: %w", chunk.Index, err)
		}

		_ = os.Remove(chunk.Path)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	return nil
}

func artifactName(chunkType string) string {
	switch chunkType {
	case ChunkTypeVideo:
		return "video.webm"
	case ChunkTypeAudio:
		return "audio.webm"
	default:
		return chunkType + ".bin"
	}
}

func validateSessionID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return ErrInvalidSessionID
	}
	return nil
}
