// Package capture turns one microphone into two independent live byte
// streams, one feeding recognition and one feeding the segment archive.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/pkg/logger"
)

// Stream names
const (
	StreamRecognition = "recognition"
	StreamArchive     = "archive"
)

// Options tune how the device is read and fanned out
type Options struct {
	ReadBufferBytes int
	MaxPendingBytes int
}

// Stream is one live channel of captured audio
type Stream struct {
	name   string
	reader io.ReadCloser
	chunks chan []byte
	done   chan struct{}
	logger *logger.Logger
}

// Name returns the stream name
func (s *Stream) Name() string {
	return s.name
}

// Chunks delivers captured audio. The channel is closed when the stream ends.
func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// Done is closed after the last chunk was delivered
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stop ends this stream only; the other stream keeps running
func (s *Stream) Stop() {
	s.reader.Close()
}

func (s *Stream) pump(bufSize int) {
	defer close(s.done)
	defer close(s.chunks)

	buf := make([]byte, bufSize)
	for {
		n, err := s.reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("Stream read failed", logger.Error(err))
			}
			s.logger.Debug("Stream ended")
			return
		}
	}
}

// Source owns the capture device and its two streams
type Source struct {
	device  Device
	opts    Options
	fanout  *audio.MultiReader
	streams []*Stream
	logger  *logger.Logger

	mu      sync.Mutex
	input   io.ReadCloser
	started bool
	stop    sync.Once
	wg      sync.WaitGroup
}

// NewSource creates a source over device. Both streams exist immediately so
// neither misses the first bytes captured.
func NewSource(device Device, opts Options, log *logger.Logger) *Source {
	if opts.ReadBufferBytes <= 0 {
		opts.ReadBufferBytes = 8192
	}
	log = log.Named("capture")
	fanout := audio.NewMultiReader(opts.MaxPendingBytes, log)

	src := &Source{
		device: device,
		opts:   opts,
		fanout: fanout,
		logger: log,
	}
	for _, name := range []string{StreamRecognition, StreamArchive} {
		src.streams = append(src.streams, &Stream{
			name:   name,
			reader: fanout.CreateReader(name),
			chunks: make(chan []byte, 64),
			done:   make(chan struct{}),
			logger: log.With(logger.String("stream", name)),
		})
	}
	return src
}

// Recognition returns the stream feeding the recognizer
func (s *Source) Recognition() *Stream {
	return s.streams[0]
}

// Archive returns the stream feeding segment files
func (s *Source) Archive() *Stream {
	return s.streams[1]
}

// Start opens the device and begins delivering audio to both streams
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("capture already started")
	}

	input, err := s.device.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s device: %w", s.device.Name(), err)
	}
	s.input = input
	s.started = true

	for _, stream := range s.streams {
		go stream.pump(s.opts.ReadBufferBytes)
	}

	s.wg.Add(1)
	go s.readDevice(input)

	s.logger.Info("Capture started", logger.String("device", s.device.Name()))
	return nil
}

func (s *Source) readDevice(input io.Reader) {
	defer s.wg.Done()
	// Streams drain what is queued, then observe EOF.
	defer s.fanout.Close()

	buf := make([]byte, s.opts.ReadBufferBytes)
	for {
		n, err := input.Read(buf)
		if n > 0 {
			if _, werr := s.fanout.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Debug("Device read ended", logger.Error(err))
			}
			return
		}
	}
}

// Discard drops everything still delivered on both streams. Call it once
// nothing consumes the streams, otherwise a capture write waiting for room
// keeps Stop from returning.
func (s *Source) Discard() {
	for _, stream := range s.streams {
		go func(chunks <-chan []byte) {
			for range chunks {
			}
		}(stream.chunks)
	}
}

// Stop asks the device to stop. Chunks already captured are still
// delivered; each stream signals Done once drained.
func (s *Source) Stop() error {
	var err error
	s.stop.Do(func() {
		s.mu.Lock()
		input, started := s.input, s.started
		s.mu.Unlock()

		if !started {
			for _, stream := range s.streams {
				close(stream.chunks)
				close(stream.done)
			}
			s.fanout.Close()
			return
		}

		s.logger.Info("Stopping capture")
		err = input.Close()
		s.wg.Wait()
	})
	return err
}
