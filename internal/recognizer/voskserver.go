package recognizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/pkg/logger"
)

// VoskServerSession talks to a vosk-server over websocket. The server answers
// every audio frame with exactly one partial or final result.
type VoskServerSession struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	result  string
	logger  *logger.Logger
}

// DialVoskServer connects and sends the stream configuration
func DialVoskServer(ctx context.Context, url string, format audio.Format, timeout time.Duration, log *logger.Logger) (*VoskServerSession, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("vosk-server: failed to connect to %s: %w", url, err)
	}

	config := map[string]any{
		"config": map[string]any{"sample_rate": format.SampleRate},
	}
	if err := conn.WriteJSON(config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vosk-server: failed to send config: %w", err)
	}

	log.Info("Connected to vosk-server", logger.String("url", url))
	return &VoskServerSession{conn: conn, timeout: timeout, logger: log}, nil
}

func (s *VoskServerSession) roundTrip(messageType int, payload []byte) (string, bool, error) {
	if s.timeout > 0 {
		deadline := time.Now().Add(s.timeout)
		s.conn.SetWriteDeadline(deadline)
		s.conn.SetReadDeadline(deadline)
	}
	if err := s.conn.WriteMessage(messageType, payload); err != nil {
		return "", false, fmt.Errorf("vosk-server: failed to send: %w", err)
	}
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return "", false, fmt.Errorf("vosk-server: failed to read result: %w", err)
	}
	return parseVoskResult(msg)
}

// AcceptFrame implements Session
func (s *VoskServerSession) AcceptFrame(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, final, err := s.roundTrip(websocket.BinaryMessage, frame)
	if err != nil {
		return false, err
	}
	if final {
		s.result = text
		s.logger.Debug("Utterance boundary", logger.String("text", text))
	}
	return final, nil
}

// Result implements Session
func (s *VoskServerSession) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// FinalResult implements Session
func (s *VoskServerSession) FinalResult() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, _, err := s.roundTrip(websocket.TextMessage, []byte(`{"eof" : 1}`))
	if err != nil {
		return "", err
	}
	return text, nil
}

// Close implements Session
func (s *VoskServerSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("vosk-server: error closing connection: %w", err)
	}
	return nil
}
