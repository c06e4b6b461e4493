package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM" // Rachel
	defaultTTSModel  = "eleven_turbo_v2"
	elevenLabsAPIURL = "https://api.elevenlabs.io"

	// Rough narration speed used to estimate artifact duration.
	wordsPerMinute = 150
)

// minimal valid MP3 frame, written as a placeholder when synthesis is not
// configured so downstream consumers still get a playable artifact path.
var silentMP3 = append([]byte{0xff, 0xfb, 0x90, 0x00}, make([]byte, 100)...)

// SpeechClient is a thin REST client for the ElevenLabs text-to-speech API.
type SpeechClient struct {
	apiKey  string
	voiceID string
	modelID string
	baseURL string
	client  *http.Client
}

func NewSpeechClient(apiKey, voiceID, modelID string) *SpeechClient {
	if strings.TrimSpace(voiceID) == "" {
		voiceID = defaultVoiceID
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultTTSModel
	}

	return &SpeechClient{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		baseURL: elevenLabsAPIURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *SpeechClient) IsConfigured() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize renders text to speech and writes the MP3 to outputPath,
// returning the estimated duration in seconds. voiceID overrides the
// configured default when non-empty. Without an API key a placeholder
// artifact is written instead of calling out.
func (c *SpeechClient) Synthesize(ctx context.Context, text, voiceID, outputPath string) (float64, error) {
	duration := estimateDuration(text)

	if !c.IsConfigured() {
		if err := os.WriteFile(outputPath, silentMP3, 0o644); err != nil {
			return 0, fmt.Errorf("write placeholder audio: %w", err)
		}
		return duration, nil
	}

	if voiceID == "" {
		voiceID = c.voiceID
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.0,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("synthesis request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, fmt.Errorf("synthesis request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create audio artifact: %w", err)
	}

	_, err = io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outputPath)
		return 0, fmt.Errorf("write audio artifact: %w", err)
	}

	return duration, nil
}

func estimateDuration(text string) float64 {
	return float64(len(strings.Fields(text))) / wordsPerMinute * 60
}
