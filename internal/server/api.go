package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benwaters/screenloom/internal/media"
	"github.com/benwaters/screenloom/internal/storage"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxChunkUploadBytes bounds one multipart upload held in memory before
// spilling to a temp file.
const maxChunkUploadBytes = 32 << 20

type SessionStore interface {
	Create(sess *storage.Session) error
	Get(sessionID string) (storage.Session, error)
	Update(sessionID string, upd storage.Update) (storage.Session, error)
	AppendEvents(sessionID string, events []storage.DOMEvent) (int, error)
	List() ([]storage.Session, error)
	Delete(sessionID string) (bool, error)
}

type MediaStore interface {
	SaveChunk(sessionID, chunkType string, index int, payload io.Reader) (media.Chunk, error)
	MergeChunks(sessionID, chunkType string) (string, error)
	SaveEventSnapshot(sessionID string, events []storage.DOMEvent) (string, error)
	SessionDir(sessionID string) string
	RemoveSessionDir(sessionID string) error
}

// Pipeline is the stop-and-process entry point; Stop must return before the
// pipeline finishes.
type Pipeline interface {
	Stop(sessionID string) (storage.Session, error)
}

// GatewayStatus reports which external gateways are configured, for the
// health endpoint.
type GatewayStatus struct {
	Transcription func() bool
	Refinement    func() bool
	Synthesis     func() bool
}

func registerAPIRoutes(mux *http.ServeMux, store SessionStore, mediaStore MediaStore, pipe Pipeline, hub *Hub, svc EnrichmentService, status GatewayStatus, generatedDir string) {

	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL      string           `json:"url"`
			Viewport storage.Viewport `json:"viewport"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.URL == "" {
			writeJSONError(w, http.StatusBadRequest, "url is required")
			return
		}

		sess := storage.Session{
			ID:        uuid.NewString(),
			URL:       req.URL,
			Viewport:  req.Viewport,
			Status:    storage.StatusRecording,
			StartTime: time.Now().UTC(),
			Events:    []storage.DOMEvent{},
		}
		if err := store.Create(&sess); err != nil {
			writeStoreError(w, err)
			return
		}
		hub.BroadcastSessionStarted(sess.ID, sess.URL)
		writeJSON(w, http.StatusCreated, map[string]string{
			"sessionId": sess.ID,
			"status":    sess.Status,
		})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := store.List()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		sess, err := store.Get(sessionID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	})

	mux.HandleFunc("PATCH /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		var upd storage.Update
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sess, err := store.Update(sessionID, upd)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	})

	mux.HandleFunc("DELETE /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		existed, err := store.Delete(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("delete session: %v", err))
			return
		}
		if existed {
			if err := mediaStore.RemoveSessionDir(sessionID); err != nil {
				log.Printf("warning: remove recordings for session %s: %v", sessionID, err)
			}
			hub.BroadcastSessionDeleted(sessionID)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": existed})
	})

	mux.HandleFunc("POST /api/sessions/{id}/chunks", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		if _, err := store.Get(sessionID); err != nil {
			writeStoreError(w, err)
			return
		}

		if err := r.ParseMultipartForm(maxChunkUploadBytes); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
		if err != nil || chunkIndex < 0 {
			writeJSONError(w, http.StatusBadRequest, "chunkIndex must be a non-negative integer")
			return
		}
		chunkType := r.FormValue("chunkType")
		if chunkType != media.ChunkTypeVideo && chunkType != media.ChunkTypeAudio {
			writeJSONError(w, http.StatusBadRequest, "chunkType must be video or audio")
			return
		}
		isLast := r.FormValue("isLastChunk") == "true"

		file, _, err := r.FormFile("chunk")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "chunk file is required")
			return
		}
		defer func() { _ = file.Close() }()

		chunk, err := mediaStore.SaveChunk(sessionID, chunkType, chunkIndex, file)
		if err != nil {
			writeMediaError(w, err)
			return
		}

		resp := map[string]any{
			"sessionId":  sessionID,
			"chunkIndex": chunk.Index,
			"chunkType":  chunkType,
			"size":       chunk.Size,
		}

		if isLast {
			artifactPath, err := mediaStore.MergeChunks(sessionID, chunkType)
			if err != nil {
				writeMediaError(w, err)
				return
			}
			upd := storage.Update{}
			if chunkType == media.ChunkTypeVideo {
				upd.VideoPath = &artifactPath
			} else {
				upd.AudioPath = &artifactPath
			}
			if _, err := store.Update(sessionID, upd); err != nil {
				writeStoreError(w, err)
				return
			}
			resp["artifactPath"] = artifactPath
		}

		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /api/sessions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		var req struct {
			Events []storage.DOMEvent `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		total, err := store.AppendEvents(sessionID, req.Events)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if len(req.Events) > 0 {
			if _, err := mediaStore.SaveEventSnapshot(sessionID, req.Events); err != nil {
				log.Printf("warning: event snapshot for session %s: %v", sessionID, err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionId":   sessionID,
			"eventsCount": total,
		})
	})

	mux.HandleFunc("POST /api/sessions/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		sess, err := pipe.Stop(sessionID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"sessionId": sess.ID,
			"status":    sess.Status,
		})
	})

	mux.HandleFunc("GET /api/sessions/{id}/media/{kind}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		sess, err := store.Get(sessionID)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		var mediaPath string
		switch r.PathValue("kind") {
		case "video":
			mediaPath = sess.VideoPath
		case "audio":
			mediaPath = sess.AudioPath
		case "narration":
			mediaPath = sess.SynthesizedAudioPath
		default:
			writeJSONError(w, http.StatusNotFound, "unknown media kind")
			return
		}
		if mediaPath == "" {
			writeJSONError(w, http.StatusNotFound, "media not available")
			return
		}

		cleanPath := filepath.Clean(mediaPath)
		if cleanPath == "" || cleanPath == "." || strings.Contains(cleanPath, "..") {
			writeJSONError(w, http.StatusForbidden, "invalid media path")
			return
		}

		f, err := os.Open(cleanPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "media file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat media: %v", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", contentTypeForMedia(cleanPath))
		http.ServeContent(w, r, filepath.Base(cleanPath), info.ModTime(), f)
	})

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		check := func(f func() bool) bool { return f != nil && f() }
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"services": map[string]bool{
				"transcription": check(status.Transcription),
				"refinement":    check(status.Refinement),
				"synthesis":     check(status.Synthesis),
			},
		})
	})

	registerEnrichmentRoutes(mux, svc, generatedDir)
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func contentTypeForMedia(path string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateSession):
		status = http.StatusConflict
	}
	writeJSONError(w, status, err.Error())
}

func writeMediaError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, media.ErrNoChunks):
		status = http.StatusBadRequest
	case errors.Is(err, media.ErrInvalidSessionID):
		status = http.StatusForbidden
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
