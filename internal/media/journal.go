package media

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Journal persists pending chunk descriptors so that an orchestrator restart
// during an active upload does not lose already-received chunks. Rows exist
// only between the first upload for a session/type and the merge.
type Journal struct {
	db *sql.DB
}

func NewJournal(dbPath string) (*Journal, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "chunks.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open chunk journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return j, nil
}

func (j *Journal) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := j.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_chunks (
			session_id TEXT NOT NULL,
			chunk_type TEXT NOT NULL,
			idx INTEGER NOT NULL,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			UNIQUE(session_id, chunk_type, idx)
		);
	`); err != nil {
		return fmt.Errorf("create pending_chunks table: %w", err)
	}

	return nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record upserts a chunk descriptor. A re-upload of the same index replaces
// the earlier row, mirroring the in-memory set.
func (j *Journal) Record(sessionID string, chunk Chunk) error {
	_, err := j.db.Exec(
		`INSERT OR REPLACE INTO pending_chunks(session_id, chunk_type, idx, path, size) VALUES(?, ?, ?, ?, ?)`,
		sessionID,
		chunk.Type,
		chunk.Index,
		chunk.Path,
		chunk.Size,
	)
	if err != nil {
		return fmt.Errorf("record chunk %d for session %s: %w", chunk.Index, sessionID, err)
	}
	return nil
}

// Clear removes all rows for a session/type pair, called after a merge.
func (j *Journal) Clear(sessionID, chunkType string) error {
	_, err := j.db.Exec(
		`DELETE FROM pending_chunks WHERE session_id = ? AND chunk_type = ?`,
		sessionID,
		chunkType,
	)
	if err != nil {
		return fmt.Errorf("clear chunks for session %s: %w", sessionID, err)
	}
	return nil
}

// ClearSession removes every row for a session, called on deletion.
func (j *Journal) ClearSession(sessionID string) error {
	_, err := j.db.Exec(`DELETE FROM pending_chunks WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clear session %s chunks: %w", sessionID, err)
	}
	return nil
}

// Pending returns every journaled descriptor grouped by session and type,
// ordered by index within each group.
func (j *Journal) Pending() (map[string]map[string][]Chunk, error) {
	rows, err := j.db.Query(
		`SELECT session_id, chunk_type, idx, path, size FROM pending_chunks ORDER BY session_id, chunk_type, idx`,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pending := make(map[string]map[string][]Chunk)
	for rows.Next() {
		var sessionID string
		var chunk Chunk
		if err := rows.Scan(&sessionID, &chunk.Type, &chunk.Index, &chunk.Path, &chunk.Size); err != nil {
			return nil, fmt.Errorf("scan pending chunk: %w", err)
		}

		byType, ok := pending[sessionID]
		if !ok {
			byType = make(map[string][]Chunk)
			pending[sessionID] = byType
		}
		byType[chunk.Type] = append(byType[chunk.Type], chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending chunk rows: %w", err)
	}

	return pending, nil
}
