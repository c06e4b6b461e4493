package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benwaters/screenloom/internal/llm"
	"github.com/benwaters/screenloom/internal/storage"
)

const refinementSystemPrompt = `You are a professional tutorial scriptwriter. You receive the raw spoken
narration from a screen recording (with filler words, repetitions and pauses)
together with the DOM interactions captured while the user demonstrated a
product. Rewrite the narration into a polished, friendly tutorial script that
references what actually happens on screen, and extract the actionable steps.

Return ONLY a JSON object, no markdown fences and no commentary, shaped as:
{
  "refined_text": "the complete polished script as one flowing narrative",
  "instructions": [
    {
      "text": "individual actionable step",
      "start_time": 0.0,
      "end_time": 3.5,
      "dom_event_index": 0,
      "context": "why this step matters"
    }
  ],
  "script_metadata": {
    "tone": "friendly_professional",
    "pace": "conversational",
    "target_audience": "beginners_intermediate",
    "estimated_duration": 45
  }
}`

// Refiner turns a raw transcript plus captured DOM events into a polished
// script with step instructions, using an LLM behind the llm.Client interface.
type Refiner struct {
	client llm.Client
	sleep  func(time.Duration)
}

func NewRefiner(client llm.Client) *Refiner {
	return &Refiner{client: client, sleep: time.Sleep}
}

// refinementReply mirrors the JSON contract the prompt asks for.
type refinementReply struct {
	RefinedText  string `json:"refined_text"`
	Instructions []struct {
		Text          string  `json:"text"`
		StartTime     float64 `json:"start_time"`
		EndTime       float64 `json:"end_time"`
		DOMEventIndex *int    `json:"dom_event_index"`
		Context       string  `json:"context"`
	} `json:"instructions"`
	ScriptMetadata struct {
		Tone              string  `json:"tone"`
		Pace              string  `json:"pace"`
		TargetAudience    string  `json:"target_audience"`
		EstimatedDuration float64 `json:"estimated_duration"`
	} `json:"script_metadata"`
}

// Refine calls the LLM with retries. Transport failures after the final
// retry propagate to the caller; a reply that is not valid JSON degrades to
// the deterministic local refinement instead of failing the stage.
func (r *Refiner) Refine(ctx context.Context, transcript string, events []storage.DOMEvent) (*storage.RefinedScript, error) {
	messages := []llm.Message{
		{Role: "system", Content: refinementSystemPrompt},
		{Role: "user", Content: buildRefinementPrompt(transcript, events)},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var reply string
	var lastErr error
	for attempt := range backoff {
		result, err := r.client.CompleteJSON(ctx, messages)
		if err == nil {
			reply = result
			lastErr = nil
			break
		}
		lastErr = err
		if attempt < len(backoff)-1 {
			r.sleep(backoff[attempt])
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("refine transcript failed after retries: %w", lastErr)
	}

	script, err := parseRefinementReply(transcript, reply)
	if err != nil {
		return localRefinement(transcript, events), nil
	}
	return script, nil
}

// Translate renders the text into the target language, keeping tone and
// technical accuracy. Used by the translate-and-synthesize operation.
func (r *Refiner) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	prompt := fmt.Sprintf(`Translate the following tutorial text to %s.
Keep the professional tone and technical accuracy.
Return ONLY the translated text, nothing else.

Text to translate:
%s
`, targetLanguage, text)

	translated, err := r.client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("translate text: %w", err)
	}
	return strings.TrimSpace(translated), nil
}

func buildRefinementPrompt(transcript string, events []storage.DOMEvent) string {
	var b strings.Builder
	b.WriteString("RAW TRANSCRIPT:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nDOM EVENTS (user interactions on screen):\n")
	b.WriteString(formatDOMEvents(events))
	b.WriteString("\n\nMatch instructions to DOM events where they align with the narration, and return only the JSON object.")
	return b.String()
}

// formatDOMEvents renders captured interactions as human-readable lines so
// the model can correlate narration with on-screen actions.
func formatDOMEvents(events []storage.DOMEvent) string {
	if len(events) == 0 {
		return "No user interactions captured during recording."
	}

	lines := make([]string, 0, len(events))
	for i, event := range events {
		desc := describeEvent(event)
		lines = append(lines, fmt.Sprintf("%d. [%.1fs] %s", i, float64(event.Timestamp)/1000, desc))
	}
	return strings.Join(lines, "\n")
}

func describeEvent(event storage.DOMEvent) string {
	tag := targetString(event, "tag")
	text := strings.TrimSpace(targetString(event, "text"))
	placeholder := targetString(event, "placeholder")

	switch event.Type {
	case "click":
		switch {
		case text != "":
			return fmt.Sprintf("Clicked '%s' (%s)", text, tag)
		case placeholder != "":
			return fmt.Sprintf("Clicked input field '%s' (%s)", placeholder, tag)
		default:
			return fmt.Sprintf("Clicked %s element", tag)
		}
	case "input":
		if placeholder != "" {
			return fmt.Sprintf("Typed in '%s' field", placeholder)
		}
		return "Typed in input field"
	case "scroll":
		return "Scrolled through content"
	case "focus":
		if text != "" {
			return fmt.Sprintf("Focused on '%s' (%s)", text, tag)
		}
		return fmt.Sprintf("Focused on %s element", tag)
	default:
		return fmt.Sprintf("%s interaction with %s", strings.ToUpper(event.Type), tag)
	}
}

func targetString(event storage.DOMEvent, key string) string {
	if event.Target == nil {
		return ""
	}
	if v, ok := event.Target[key].(string); ok {
		return v
	}
	return ""
}

// parseRefinementReply strips optional markdown fences and decodes the
// model's JSON contract into the persisted script shape.
func parseRefinementReply(original, reply string) (*storage.RefinedScript, error) {
	cleaned := stripMarkdownFences(reply)

	var parsed refinementReply
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("parse refinement reply: %w", err)
	}
	if strings.TrimSpace(parsed.RefinedText) == "" {
		return nil, fmt.Errorf("refinement reply missing refined_text")
	}

	instructions := make([]storage.Instruction, 0, len(parsed.Instructions))
	for _, inst := range parsed.Instructions {
		instructions = append(instructions, storage.Instruction{
			Text:          inst.Text,
			StartTime:     inst.StartTime,
			EndTime:       inst.EndTime,
			DOMEventIndex: inst.DOMEventIndex,
			Context:       inst.Context,
		})
	}

	return &storage.RefinedScript{
		OriginalText: original,
		RefinedText:  strings.TrimSpace(parsed.RefinedText),
		Instructions: instructions,
		Metadata: storage.ScriptMetadata{
			Tone:              parsed.ScriptMetadata.Tone,
			Pace:              parsed.ScriptMetadata.Pace,
			TargetAudience:    parsed.ScriptMetadata.TargetAudience,
			EstimatedDuration: parsed.ScriptMetadata.EstimatedDuration,
		},
	}, nil
}

func stripMarkdownFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "erm": {}, "hmm": {},
}

// localRefinement is the deterministic fallback when no usable model reply
// is available: strip filler words and derive instructions from clicks.
func localRefinement(transcript string, events []storage.DOMEvent) *storage.RefinedScript {
	words := strings.Fields(transcript)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, filler := fillerWords[strings.ToLower(strings.Trim(w, ",."))]; filler {
			continue
		}
		kept = append(kept, w)
	}

	refined := strings.Join(kept, " ")
	if refined == "" {
		refined = "Welcome to this tutorial! Let's walk through the steps together to help you get started."
	}

	var instructions []storage.Instruction
	for i, event := range events {
		if event.Type != "click" {
			continue
		}
		text := strings.TrimSpace(targetString(event, "text"))
		if text == "" {
			text = "element"
		}
		idx := i
		instructions = append(instructions, storage.Instruction{
			Text:          fmt.Sprintf("Click on '%s'", text),
			StartTime:     float64(event.Timestamp) / 1000,
			EndTime:       float64(event.Timestamp+2000) / 1000,
			DOMEventIndex: &idx,
		})
	}

	return &storage.RefinedScript{
		OriginalText: transcript,
		RefinedText:  refined,
		Instructions: instructions,
		Metadata: storage.ScriptMetadata{
			Tone:              "friendly_professional",
			Pace:              "conversational",
			TargetAudience:    "beginners",
			EstimatedDuration: float64(len(words)) * 0.4,
		},
	}
}
