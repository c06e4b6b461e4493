package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/benwaters/screenloom/internal/storage"
)

// EnrichmentService exposes the refine/synthesize operations that run
// standalone, outside any session's pipeline.
type EnrichmentService interface {
	IsAvailable() bool
	Refine(ctx context.Context, transcript string, events []storage.DOMEvent) (*storage.RefinedScript, error)
	Synthesize(ctx context.Context, text, voiceID, outputDir, filename string) (string, float64, error)
	TranslateAndSynthesize(ctx context.Context, text, targetLanguage, voiceID, outputDir, filename string) (string, string, float64, error)
}

func registerEnrichmentRoutes(mux *http.ServeMux, svc EnrichmentService, generatedDir string) {
	mux.HandleFunc("POST /api/refine-text", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text   string             `json:"text"`
			Events []storage.DOMEvent `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Text == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		if !svc.IsAvailable() {
			writeJSONError(w, http.StatusServiceUnavailable, "refinement gateway not configured")
			return
		}

		script, err := svc.Refine(r.Context(), req.Text, req.Events)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("refine text: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, script)
	})

	mux.HandleFunc("POST /api/synthesize-voice", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text    string `json:"text"`
			VoiceID string `json:"voiceId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Text == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}

		filename := "voice-" + uuid.NewString() + ".mp3"
		audioPath, duration, err := svc.Synthesize(r.Context(), req.Text, req.VoiceID, generatedDir, filename)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("synthesize voice: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"audioPath": audioPath,
			"duration":  duration,
			"createdAt": time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("POST /api/translate-synthesize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text           string `json:"text"`
			TargetLanguage string `json:"targetLanguage"`
			VoiceID        string `json:"voiceId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Text == "" || req.TargetLanguage == "" {
			writeJSONError(w, http.StatusBadRequest, "text and targetLanguage are required")
			return
		}
		if !svc.IsAvailable() {
			writeJSONError(w, http.StatusServiceUnavailable, "refinement gateway not configured")
			return
		}

		filename := "translated-" + uuid.NewString() + ".mp3"
		translated, audioPath, duration, err := svc.TranslateAndSynthesize(r.Context(), req.Text, req.TargetLanguage, req.VoiceID, generatedDir, filename)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("translate and synthesize: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"translatedText": translated,
			"audioPath":      audioPath,
			"duration":       duration,
		})
	})
}
