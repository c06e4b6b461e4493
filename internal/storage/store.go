package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when the referenced session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicateSession is returned by Create on an id collision.
	ErrDuplicateSession = errors.New("session already exists")
)

// document is the on-disk shape: the whole store is one JSON document,
// rewritten atomically on every mutation.
type document struct {
	Sessions    map[string]*Session `json:"sessions"`
	LastUpdated time.Time           `json:"last_updated"`
}

// FileStore persists all sessions in a single JSON document. Every mutation
// is a read-modify-write of the full document under one mutex, so the file
// is the unit of atomicity and concurrent updates to different sessions
// cannot clobber each other.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "sessions.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	s := &FileStore{path: path, now: time.Now}

	// Fail fast on a corrupt document rather than silently starting empty.
	if _, err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Path returns the location of the store document on disk.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Create(sess *Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := doc.Sessions[sess.ID]; ok {
		return fmt.Errorf("create session %s: %w", sess.ID, ErrDuplicateSession)
	}

	cp := *sess
	if cp.Events == nil {
		cp.Events = []DOMEvent{}
	}
	doc.Sessions[sess.ID] = &cp

	return s.save(doc)
}

func (s *FileStore) Get(sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Session{}, err
	}

	sess, ok := doc.Sessions[sessionID]
	if !ok {
		return Session{}, fmt.Errorf("get session %s: %w", sessionID, ErrNotFound)
	}

	return *sess, nil
}

// Update applies a shallow merge of the given fields onto the existing
// record and rewrites the whole document.
func (s *FileStore) Update(sessionID string, upd Update) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Session{}, err
	}

	sess, ok := doc.Sessions[sessionID]
	if !ok {
		return Session{}, fmt.Errorf("update session %s: %w", sessionID, ErrNotFound)
	}

	applyUpdate(sess, upd)

	if err := s.save(doc); err != nil {
		return Session{}, err
	}
	return *sess, nil
}

// AppendEvents concatenates events onto the session's existing sequence.
func (s *FileStore) AppendEvents(sessionID string, events []DOMEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}

	sess, ok := doc.Sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("append events for session %s: %w", sessionID, ErrNotFound)
	}

	sess.Events = append(sess.Events, events...)

	if err := s.save(doc); err != nil {
		return 0, err
	}
	return len(sess.Events), nil
}

// List returns all sessions ordered by start time descending.
func (s *FileStore) List() ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(doc.Sessions))
	for _, sess := range doc.Sessions {
		sessions = append(sessions, *sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})

	return sessions, nil
}

// Delete removes the record and reports whether it existed. File cleanup
// is the caller's responsibility.
func (s *FileStore) Delete(sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}

	if _, ok := doc.Sessions[sessionID]; !ok {
		return false, nil
	}

	delete(doc.Sessions, sessionID)

	if err := s.save(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Sessions: make(map[string]*Session)}, nil
		}
		return nil, fmt.Errorf("read store document: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse store document: %w", err)
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]*Session)
	}

	return &doc, nil
}

// save writes the document to a temp file in the same directory and renames
// it into place, so a failed write never truncates the existing store.
func (s *FileStore) save(doc *document) error {
	doc.LastUpdated = s.now().UTC()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace store document: %w", err)
	}

	return nil
}

func applyUpdate(sess *Session, upd Update) {
	if upd.URL != nil {
		sess.URL = *upd.URL
	}
	if upd.Viewport != nil {
		sess.Viewport = *upd.Viewport
	}
	if upd.EndTime != nil {
		sess.EndTime = upd.EndTime
	}
	if upd.Status != nil {
		sess.Status = *upd.Status
	}
	if upd.VideoPath != nil {
		sess.VideoPath = *upd.VideoPath
	}
	if upd.AudioPath != nil {
		sess.AudioPath = *upd.AudioPath
	}
	if upd.Transcription != nil {
		sess.Transcription = upd.Transcription
	}
	if upd.RefinedScript != nil {
		sess.RefinedScript = upd.RefinedScript
	}
	if upd.SynthesizedAudioPath != nil {
		sess.SynthesizedAudioPath = *upd.SynthesizedAudioPath
	}
	if upd.Error != nil {
		sess.Error = *upd.Error
	}
	if upd.ProcessedAt != nil {
		sess.ProcessedAt = upd.ProcessedAt
	}
}
