//go:build vosk

package recognizer

import (
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/pkg/logger"
)

// VoskSession runs libvosk in-process
type VoskSession struct {
	mu     sync.Mutex
	model  *vosk.VoskModel
	rec    *vosk.VoskRecognizer
	result string
	logger *logger.Logger
}

// NewVosk loads the model directory and creates a recognizer
func NewVosk(modelPath string, format audio.Format, log *logger.Logger) (Session, error) {
	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: failed to load model %s: %w", modelPath, err)
	}
	rec, err := vosk.NewRecognizer(model, float64(format.SampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("vosk: failed to create recognizer: %w", err)
	}

	log.Info("Loaded vosk model", logger.String("model", modelPath))
	return &VoskSession{model: model, rec: rec, logger: log}, nil
}

// AcceptFrame implements Session
func (s *VoskSession) AcceptFrame(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.AcceptWaveform(frame) == 0 {
		return false, nil
	}
	text, _, err := parseVoskResult([]byte(s.rec.Result()))
	if err != nil {
		return false, err
	}
	s.result = text
	return true, nil
}

// Result implements Session
func (s *VoskSession) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// FinalResult implements Session
func (s *VoskSession) FinalResult() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, _, err := parseVoskResult([]byte(s.rec.FinalResult()))
	return text, err
}

// Close releases the recognizer and the model
func (s *VoskSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec.Free()
	s.model.Free()
	return nil
}
