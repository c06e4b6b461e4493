package enrich

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benwaters/screenloom/internal/storage"
)

// Result is the combined outcome of one refine-and-synthesize pass.
type Result struct {
	Script    *storage.RefinedScript
	AudioPath string
	Duration  float64
}

// Service is the enrichment gateway: script refinement through the LLM
// refiner followed by voice synthesis, as one dependent operation. A nil
// refiner makes the whole gateway unavailable; an unconfigured speech
// client degrades synthesis to a placeholder artifact.
type Service struct {
	refiner *Refiner
	speech  *SpeechClient
}

func NewService(refiner *Refiner, speech *SpeechClient) *Service {
	return &Service{refiner: refiner, speech: speech}
}

// IsAvailable reports whether the gateway can produce a refined script.
// The pipeline probes this before entering the refining stage.
func (s *Service) IsAvailable() bool {
	return s != nil && s.refiner != nil
}

// RefineAndSynthesize refines the transcript against the DOM-event context
// and synthesizes narration for the refined text. The artifact is written to
// outputDir as <sessionID>_synthesized.mp3.
func (s *Service) RefineAndSynthesize(ctx context.Context, sessionID, transcript string, events []storage.DOMEvent, outputDir string) (*Result, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("enrichment gateway not configured")
	}

	script, err := s.refiner.Refine(ctx, transcript, events)
	if err != nil {
		return nil, err
	}

	audioPath, duration, err := s.synthesizeTo(ctx, script.RefinedText, "", outputDir, sessionID+"_synthesized.mp3")
	if err != nil {
		return nil, err
	}

	return &Result{Script: script, AudioPath: audioPath, Duration: duration}, nil
}

// Refine refines arbitrary transcript text, for the standalone
// refine-text operation.
func (s *Service) Refine(ctx context.Context, transcript string, events []storage.DOMEvent) (*storage.RefinedScript, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("enrichment gateway not configured")
	}
	return s.refiner.Refine(ctx, transcript, events)
}

// SpeechConfigured reports whether real voice synthesis is available, as
// opposed to the placeholder artifact fallback.
func (s *Service) SpeechConfigured() bool {
	return s != nil && s.speech != nil && s.speech.IsConfigured()
}

// Synthesize renders arbitrary text to speech, for the standalone
// synthesize-voice operation.
func (s *Service) Synthesize(ctx context.Context, text, voiceID, outputDir, filename string) (string, float64, error) {
	return s.synthesizeTo(ctx, text, voiceID, outputDir, filename)
}

// TranslateAndSynthesize translates the text into the target language and
// synthesizes narration for the translation.
func (s *Service) TranslateAndSynthesize(ctx context.Context, text, targetLanguage, voiceID, outputDir, filename string) (string, string, float64, error) {
	if !s.IsAvailable() {
		return "", "", 0, fmt.Errorf("enrichment gateway not configured")
	}

	translated, err := s.refiner.Translate(ctx, text, targetLanguage)
	if err != nil {
		return "", "", 0, err
	}

	audioPath, duration, err := s.synthesizeTo(ctx, translated, voiceID, outputDir, filename)
	if err != nil {
		return "", "", 0, err
	}

	return translated, audioPath, duration, nil
}

func (s *Service) synthesizeTo(ctx context.Context, text, voiceID, outputDir, filename string) (string, float64, error) {
	if s == nil || s.speech == nil {
		return "", 0, fmt.Errorf("voice synthesis not configured")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(outputDir, filename)
	duration, err := s.speech.Synthesize(ctx, text, voiceID, outputPath)
	if err != nil {
		return "", 0, err
	}

	return outputPath, duration, nil
}
