package recognizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/internal/vad"
	"github.com/yegors/memorec/pkg/logger"
)

// VADSession finds boundaries with an energy segmenter and sends each
// utterance to a batch transcriber. Utterances too short to be speech
// produce a boundary with empty text.
type VADSession struct {
	ctx         context.Context
	mu          sync.Mutex
	segmenter   *vad.Segmenter
	transcriber Transcriber
	format      audio.Format
	result      string
	logger      *logger.Logger
}

// NewVADSession creates a session over transcriber
func NewVADSession(ctx context.Context, cfg vad.Config, format audio.Format, transcriber Transcriber, log *logger.Logger) (*VADSession, error) {
	segmenter, err := vad.NewSegmenter(cfg, format)
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	return &VADSession{
		ctx:         ctx,
		segmenter:   segmenter,
		transcriber: transcriber,
		format:      format,
		logger:      log,
	}, nil
}

func (s *VADSession) transcribe(pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	text, err := s.transcriber.Transcribe(s.ctx, audio.EncodeWAV(pcm, s.format))
	if err != nil {
		return "", err
	}
	s.logger.Debug("Transcribed utterance",
		logger.Int("bytes", len(pcm)),
		logger.String("text", text))
	return text, nil
}

// AcceptFrame implements Session
func (s *VADSession) AcceptFrame(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	utterance, boundary := s.segmenter.Push(frame)
	if !boundary {
		return false, nil
	}
	text, err := s.transcribe(utterance)
	if err != nil {
		return false, err
	}
	s.result = text
	return true, nil
}

// Result implements Session
func (s *VADSession) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// FinalResult implements Session
func (s *VADSession) FinalResult() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcribe(s.segmenter.Flush())
}

// Close implements Session
func (s *VADSession) Close() error {
	return nil
}
