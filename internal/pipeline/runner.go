// Package pipeline drives a stopped recording session through
// transcription, script refinement, and voice synthesis, persisting
// each stage's output before announcing it to connected clients.
package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/benwaters/screenloom/internal/storage"
)

const defaultGatewayTimeout = 5 * time.Minute

type Runner struct {
	store       Store
	transcriber Transcriber
	enricher    Enricher
	hub         EventBroadcaster

	// sessionDir maps a session ID to the directory holding its
	// media artifacts. Synthesized audio is written there too.
	sessionDir func(sessionID string) string

	gatewayTimeout time.Duration
	now            func() time.Time
	exporter       Exporter
}

// SetExporter enables markdown export of sessions that finish the pipeline.
func (r *Runner) SetExporter(e Exporter) {
	r.exporter = e
}

func NewRunner(store Store, transcriber Transcriber, enricher Enricher, hub EventBroadcaster, sessionDir func(string) string, gatewayTimeout time.Duration) *Runner {
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	return &Runner{
		store:          store,
		transcriber:    transcriber,
		enricher:       enricher,
		hub:            hub,
		sessionDir:     sessionDir,
		gatewayTimeout: gatewayTimeout,
		now:            time.Now,
	}
}

// Stop moves the session out of recording and kicks off processing in
// the background. It returns as soon as the processing status is
// persisted; callers should not wait for the pipeline to finish.
// Calling Stop again on a finished or failed session re-runs the
// pipeline from the top, which is how failed sessions are retried.
func (r *Runner) Stop(sessionID string) (storage.Session, error) {
	sess, err := r.store.Get(sessionID)
	if err != nil {
		return storage.Session{}, err
	}

	status := storage.StatusProcessing
	upd := storage.Update{Status: &status}
	if sess.EndTime == nil {
		endTime := r.now()
		upd.EndTime = &endTime
	}
	sess, err = r.store.Update(sessionID, upd)
	if err != nil {
		return storage.Session{}, err
	}
	r.hub.BroadcastSessionStatus(sessionID, storage.StatusProcessing, "")

	go r.Process(sessionID)
	return sess, nil
}

// Process runs the full pipeline synchronously. Stop invokes it in a
// goroutine; tests call it directly.
func (r *Runner) Process(sessionID string) {
	sess, err := r.store.Get(sessionID)
	if err != nil {
		r.abandonOrFail(sessionID, err)
		return
	}

	transcript := ""
	if sess.AudioPath != "" && r.transcriber.IsAvailable() {
		if !r.setStatus(sessionID, storage.StatusTranscribing, "") {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.gatewayTimeout)
		tr, err := r.transcriber.Transcribe(ctx, sess.AudioPath)
		cancel()
		if err != nil {
			r.fail(sessionID, "transcription failed: "+err.Error())
			return
		}
		if _, err := r.store.Update(sessionID, storage.Update{Transcription: tr}); err != nil {
			r.abandonOrFail(sessionID, err)
			return
		}
		r.hub.BroadcastTranscriptionReady(sessionID, tr)
		transcript = tr.Text
	} else {
		r.hub.BroadcastSessionStatus(sessionID, storage.StatusProcessing, "transcription skipped: no audio recorded or transcription not configured")
	}

	if !r.enricher.IsAvailable() {
		r.complete(sessionID, "completed without AI enrichment: gateway not configured")
		return
	}

	if !r.setStatus(sessionID, storage.StatusRefining, "") {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.gatewayTimeout)
	result, err := r.enricher.RefineAndSynthesize(ctx, sessionID, transcript, sess.Events, r.sessionDir(sessionID))
	cancel()
	if err != nil {
		r.fail(sessionID, "enrichment failed: "+err.Error())
		return
	}
	if _, err := r.store.Update(sessionID, storage.Update{RefinedScript: result.Script}); err != nil {
		r.abandonOrFail(sessionID, err)
		return
	}
	r.hub.BroadcastRefinementReady(sessionID, result.Script)

	if !r.setStatus(sessionID, storage.StatusSynthesizing, "") {
		return
	}
	if _, err := r.store.Update(sessionID, storage.Update{SynthesizedAudioPath: &result.AudioPath}); err != nil {
		r.abandonOrFail(sessionID, err)
		return
	}
	r.hub.BroadcastSynthesisReady(sessionID, result.AudioPath)

	r.complete(sessionID, "")
}

// setStatus persists a stage transition and announces it. Returns
// false when the session vanished or the store write failed, in which
// case the pipeline run is over.
func (r *Runner) setStatus(sessionID, status, message string) bool {
	if _, err := r.store.Update(sessionID, storage.Update{Status: &status}); err != nil {
		r.abandonOrFail(sessionID, err)
		return false
	}
	r.hub.BroadcastSessionStatus(sessionID, status, message)
	return true
}

func (r *Runner) complete(sessionID, message string) {
	status := storage.StatusCompleted
	processedAt := r.now()
	sess, err := r.store.Update(sessionID, storage.Update{Status: &status, ProcessedAt: &processedAt})
	if err != nil {
		r.abandonOrFail(sessionID, err)
		return
	}
	r.hub.BroadcastSessionStatus(sessionID, storage.StatusCompleted, message)
	r.hub.BroadcastSessionComplete(sessionID)

	if r.exporter != nil {
		if _, err := r.exporter.Export(sess); err != nil {
			log.Printf("warning: session %s export failed: %v", sessionID, err)
		}
	}
}

// fail records the stage error on the session so a later stop request
// can retry it.
func (r *Runner) fail(sessionID, message string) {
	log.Printf("pipeline: session %s: %s", sessionID, message)
	status := storage.StatusError
	_, err := r.store.Update(sessionID, storage.Update{Status: &status, Error: &message})
	if err != nil {
		r.abandonOrFail(sessionID, err)
		return
	}
	r.hub.BroadcastError(sessionID, message)
}

// abandonOrFail handles store errors raised mid-run. A session deleted
// while processing is simply abandoned; anything else is logged and
// announced, since there is nowhere durable left to record it.
func (r *Runner) abandonOrFail(sessionID string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("pipeline: session %s deleted mid-run, abandoning", sessionID)
		return
	}
	log.Printf("pipeline: session %s: store write failed: %v", sessionID, err)
	r.hub.BroadcastError(sessionID, "internal storage failure")
}
