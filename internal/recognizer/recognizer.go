package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/internal/vad"
	"github.com/yegors/memorec/pkg/logger"
)

// Session is a streaming recognizer. AcceptFrame returns true when an
// utterance boundary was detected; Result is only meaningful right after
// that. FinalResult flushes the trailing partial utterance and is called once.
type Session interface {
	AcceptFrame(frame []byte) (bool, error)
	Result() string
	FinalResult() (string, error)
	Close() error
}

// Config represents the configuration for the recognition backends
type Config struct {
	Backend   string // vosk-server, vosk, openai
	ModelPath string
	ServerURL string

	OpenAIAPIKey string
	OpenAIModel  string
	Language     string
	Timeout      time.Duration

	VAD vad.Config
}

// New opens a recognition session for the configured backend
func New(ctx context.Context, cfg Config, format audio.Format, log *logger.Logger) (Session, error) {
	log = log.Named("recognizer")

	switch cfg.Backend {
	case "vosk-server":
		return DialVoskServer(ctx, cfg.ServerURL, format, cfg.Timeout, log)
	case "vosk":
		return NewVosk(cfg.ModelPath, format, log)
	case "openai":
		transcriber := NewOpenAITranscriber(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Language, cfg.Timeout)
		return NewVADSession(ctx, cfg.VAD, format, transcriber, log)
	default:
		return nil, fmt.Errorf("unknown recognizer backend %q", cfg.Backend)
	}
}

// voskMessage is the result format shared by libvosk and vosk-server
type voskMessage struct {
	Text    *string `json:"text"`
	Partial *string `json:"partial"`
}

// parseVoskResult returns the finalized text of a vosk JSON result and
// whether the message was final
func parseVoskResult(data []byte) (string, bool, error) {
	var msg voskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", false, fmt.Errorf("invalid recognizer result %q: %w", data, err)
	}
	if msg.Text != nil {
		return *msg.Text, true, nil
	}
	return "", false, nil
}
