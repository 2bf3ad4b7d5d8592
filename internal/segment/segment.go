// Package segment writes the MP3 clips a dictation session is split into.
// Exactly one segment is open at a time; it receives archive audio until the
// session controller rotates it.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/yegors/memorec/pkg/logger"
)

// ErrClosed is returned when writing to a segment that was already closed
var ErrClosed = errors.New("segment closed")

// FileName returns the file name of a segment closed at t (local wall clock)
func FileName(t time.Time) string {
	return t.Local().Format("15-04-05") + ".mp3"
}

var fileNamePattern = regexp.MustCompile(`^\d{2}-\d{2}-\d{2}\.mp3$`)

// IsFileName reports whether name looks like a segment produced by FileName
func IsFileName(name string) bool {
	return fileNamePattern.MatchString(name)
}

// Writer creates segment files inside a destination directory
type Writer struct {
	dir     string
	encoder EncoderFactory
	logger  *logger.Logger
}

// NewWriter creates a segment writer for dir using the given encoder
func NewWriter(dir string, encoder EncoderFactory, log *logger.Logger) *Writer {
	return &Writer{
		dir:     dir,
		encoder: encoder,
		logger:  log.Named("segment"),
	}
}

// Dir returns the destination directory
func (w *Writer) Dir() string {
	return w.dir
}

// Open creates a new segment file. An existing file with the same name is
// truncated, mirroring the one-second naming resolution.
func (w *Writer) Open(name string, openedAt time.Time) (*Segment, error) {
	path := filepath.Join(w.dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment %s: %w", name, err)
	}

	enc, err := w.encoder.NewEncoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to start encoder for %s: %w", name, err)
	}

	w.logger.Debug("Opened segment", logger.String("file", name))

	return &Segment{
		name:     name,
		path:     path,
		openedAt: openedAt,
		file:     file,
		encoder:  enc,
	}, nil
}

// Segment is one open output audio file
type Segment struct {
	name     string
	path     string
	openedAt time.Time

	mu      sync.Mutex
	file    *os.File
	encoder Encoder
	written int64
	closed  bool
}

// Name returns the file name the segment was opened with
func (s *Segment) Name() string {
	return s.name
}

// Path returns the absolute path of the segment file
func (s *Segment) Path() string {
	return s.path
}

// OpenedAt returns when the segment started receiving audio
func (s *Segment) OpenedAt() time.Time {
	return s.openedAt
}

// Written returns the number of PCM bytes accepted so far
func (s *Segment) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Write appends raw audio to the segment
func (s *Segment) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	n, err := s.encoder.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write segment %s: %w", s.name, err)
	}
	return n, nil
}

// Close flushes the encoder and the file. Closing a segment that never
// received audio leaves an empty clip behind. Close is idempotent.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	encErr := s.encoder.Close()
	if encErr != nil && s.written == 0 {
		// Encoders may complain about empty input; the empty clip is expected.
		encErr = nil
	}
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close segment %s: %w", s.name, err)
	}
	if encErr != nil {
		return fmt.Errorf("failed to finalize segment %s: %w", s.name, encErr)
	}
	return nil
}
