package storage

import "time"

// Session status values. Transitions are monotonic along the pipeline;
// the only backward-looking transition is into StatusError.
const (
	StatusRecording    = "recording"
	StatusProcessing   = "processing"
	StatusTranscribing = "transcribing"
	StatusRefining     = "refining"
	StatusSynthesizing = "synthesizing"
	StatusCompleted    = "completed"
	StatusError        = "error"
)

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DOMEvent is one interaction record captured by the extension.
// Target and Metadata are passed through untouched; the refiner is the
// only consumer that interprets them.
type DOMEvent struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Target    map[string]any `json:"target,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Word is a single transcribed word with timing.
type Word struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// Transcription is the speech-to-text result for a session's audio artifact.
type Transcription struct {
	Text       string  `json:"text"`
	Words      []Word  `json:"words,omitempty"`
	Confidence float64 `json:"confidence"`
	Duration   float64 `json:"duration"`
}

// Instruction is one actionable step extracted by the refiner, optionally
// correlated with a captured DOM event.
type Instruction struct {
	Text          string  `json:"text"`
	StartTime     float64 `json:"start_time"`
	EndTime       float64 `json:"end_time"`
	DOMEventIndex *int    `json:"dom_event_index,omitempty"`
	Context       string  `json:"context,omitempty"`
}

type ScriptMetadata struct {
	Tone              string  `json:"tone,omitempty"`
	Pace              string  `json:"pace,omitempty"`
	TargetAudience    string  `json:"target_audience,omitempty"`
	EstimatedDuration float64 `json:"estimated_duration,omitempty"`
}

// RefinedScript is the enrichment gateway's refinement result.
type RefinedScript struct {
	OriginalText string         `json:"original_text"`
	RefinedText  string         `json:"refined_text"`
	Instructions []Instruction  `json:"instructions"`
	Metadata     ScriptMetadata `json:"metadata"`
}

// Session is the central record, owned exclusively by the Store.
type Session struct {
	ID                   string         `json:"id"`
	URL                  string         `json:"url"`
	Viewport             Viewport       `json:"viewport"`
	StartTime            time.Time      `json:"start_time"`
	EndTime              *time.Time     `json:"end_time,omitempty"`
	Status               string         `json:"status"`
	Events               []DOMEvent     `json:"events"`
	VideoPath            string         `json:"video_path,omitempty"`
	AudioPath            string         `json:"audio_path,omitempty"`
	Transcription        *Transcription `json:"transcription,omitempty"`
	RefinedScript        *RefinedScript `json:"refined_script,omitempty"`
	SynthesizedAudioPath string         `json:"synthesized_audio_path,omitempty"`
	Error                string         `json:"error,omitempty"`
	ProcessedAt          *time.Time     `json:"processed_at,omitempty"`
}

// Update is a partial session mutation. Nil fields are left untouched;
// the store applies it as a shallow merge against the current record.
type Update struct {
	URL                  *string        `json:"url,omitempty"`
	Viewport             *Viewport      `json:"viewport,omitempty"`
	EndTime              *time.Time     `json:"end_time,omitempty"`
	Status               *string        `json:"status,omitempty"`
	VideoPath            *string        `json:"video_path,omitempty"`
	AudioPath            *string        `json:"audio_path,omitempty"`
	Transcription        *Transcription `json:"transcription,omitempty"`
	RefinedScript        *RefinedScript `json:"refined_script,omitempty"`
	SynthesizedAudioPath *string        `json:"synthesized_audio_path,omitempty"`
	Error                *string        `json:"error,omitempty"`
	ProcessedAt          *time.Time     `json:"processed_at,omitempty"`
}
