package pipeline

import (
	"context"

	"github.com/benwaters/screenloom/internal/enrich"
	"github.com/benwaters/screenloom/internal/storage"
)

type Store interface {
	Get(sessionID string) (storage.Session, error)
	Update(sessionID string, upd storage.Update) (storage.Session, error)
}

type Transcriber interface {
	IsAvailable() bool
	Transcribe(ctx context.Context, audioPath string) (*storage.Transcription, error)
}

type Enricher interface {
	IsAvailable() bool
	RefineAndSynthesize(ctx context.Context, sessionID, transcript string, events []storage.DOMEvent, outputDir string) (*enrich.Result, error)
}

// Exporter writes a human-readable copy of a finished session.
type Exporter interface {
	Export(sess storage.Session) (string, error)
}

type EventBroadcaster interface {
	BroadcastSessionStatus(sessionID, status, message string)
	BroadcastTranscriptionReady(sessionID string, tr *storage.Transcription)
	BroadcastRefinementReady(sessionID string, script *storage.RefinedScript)
	BroadcastSynthesisReady(sessionID, audioPath string)
	BroadcastSessionComplete(sessionID string)
	BroadcastError(sessionID, message string)
}
