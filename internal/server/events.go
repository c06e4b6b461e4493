package server

import (
	"time"

	"github.com/benwaters/screenloom/internal/storage"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type SessionStartedEvent struct {
	Event
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type SessionStatusEvent struct {
	Event
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

type TranscriptionReadyEvent struct {
	Event
	SessionID     string                 `json:"session_id"`
	Transcription *storage.Transcription `json:"transcription"`
}

type RefinementReadyEvent struct {
	Event
	SessionID string                 `json:"session_id"`
	Script    *storage.RefinedScript `json:"refined_script"`
}

type SynthesisReadyEvent struct {
	Event
	SessionID string `json:"session_id"`
	AudioPath string `json:"audio_path"`
}

type SessionCompleteEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type SessionDeletedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type ErrorEvent struct {
	Event
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
