package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Transcriber turns one finished utterance (a WAV file) into text
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// OpenAITranscriber uses the OpenAI audio transcription endpoint
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	language string
}

// NewOpenAITranscriber creates a transcriber. Extra request options (base
// URL, HTTP client) are appended after the defaults.
func NewOpenAITranscriber(apiKey, model, language string, timeout time.Duration, opts ...option.RequestOption) *OpenAITranscriber {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	if timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}

	return &OpenAITranscriber{
		client:   openai.NewClient(append(base, opts...)...),
		model:    model,
		language: language,
	}
}

// Transcribe implements Transcriber
func (t *OpenAITranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: openai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription failed: %w", err)
	}
	return resp.Text, nil
}
