package transcribe

import (
	"context"
	"fmt"
	"strings"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	restapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/benwaters/screenloom/internal/storage"
)

// Gateway transcribes a merged audio artifact through Deepgram's prerecorded
// API. With no API key configured the gateway reports unavailable and the
// pipeline skips the transcription stage.
type Gateway struct {
	apiKey string
	model  string

	transcribeFile func(ctx context.Context, filePath string) (*restapi.PreRecordedResponse, error)
}

func NewGateway(apiKey, model string) *Gateway {
	if strings.TrimSpace(model) == "" {
		model = "nova-2"
	}

	g := &Gateway{apiKey: apiKey, model: model}
	g.transcribeFile = g.fromFile
	return g
}

// IsAvailable reports whether the gateway is configured to make remote calls.
func (g *Gateway) IsAvailable() bool {
	return strings.TrimSpace(g.apiKey) != ""
}

// Transcribe blocks until the remote call resolves; AI stages can take
// minutes, so the caller controls the timeout through ctx.
func (g *Gateway) Transcribe(ctx context.Context, audioPath string) (*storage.Transcription, error) {
	if !g.IsAvailable() {
		return nil, fmt.Errorf("transcription gateway not configured")
	}

	resp, err := g.transcribeFile(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("deepgram transcription: %w", err)
	}

	tr, err := fromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("deepgram transcription: %w", err)
	}
	return tr, nil
}

func (g *Gateway) fromFile(ctx context.Context, filePath string) (*restapi.PreRecordedResponse, error) {
	c := client.NewREST(g.apiKey, &interfaces.ClientOptions{})
	dg := listenv1rest.New(c)

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       g.model,
		Punctuate:   true,
		SmartFormat: true,
	}

	return dg.FromFile(ctx, filePath, options)
}

// fromResponse flattens Deepgram's channel/alternative nesting into the
// session record's transcription shape. A well-formed but empty response
// (no channels or alternatives) is a semantic error.
func fromResponse(resp *restapi.PreRecordedResponse) (*storage.Transcription, error) {
	if resp == nil || resp.Results == nil || len(resp.Results.Channels) == 0 {
		return nil, fmt.Errorf("no channels in response")
	}

	alternatives := resp.Results.Channels[0].Alternatives
	if len(alternatives) == 0 {
		return nil, fmt.Errorf("no alternatives in response")
	}
	alt := alternatives[0]

	words := make([]storage.Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, storage.Word{
			Word:           w.Word,
			PunctuatedWord: w.PunctuatedWord,
			Start:          w.Start,
			End:            w.End,
			Confidence:     w.Confidence,
		})
	}

	tr := &storage.Transcription{
		Text:       strings.TrimSpace(alt.Transcript),
		Words:      words,
		Confidence: alt.Confidence,
	}
	if resp.Metadata != nil {
		tr.Duration = resp.Metadata.Duration
	}

	return tr, nil
}
