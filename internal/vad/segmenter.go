// Package vad finds utterance boundaries in PCM16 audio by frame energy.
package vad

import (
	"fmt"
	"math"

	"github.com/yegors/memorec/internal/audio"
)

// Config tunes the segmenter
type Config struct {
	Threshold      float64 // normalized RMS, 0..1
	SilenceMs      int     // trailing silence that ends an utterance
	MinSpeechMs    int     // shorter utterances are reported empty
	MaxUtteranceMs int     // forces a boundary on long monologues
}

// Segmenter accumulates voiced audio and reports a boundary once enough
// trailing silence has been seen
type Segmenter struct {
	cfg        Config
	bytesPerMs int

	inSpeech  bool
	buffer    []byte
	speechMs  int
	silenceMs int
	totalMs   int
}

// NewSegmenter validates cfg and creates a segmenter for format
func NewSegmenter(cfg Config, format audio.Format) (*Segmenter, error) {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", cfg.Threshold)
	}
	if cfg.SilenceMs <= 0 {
		return nil, fmt.Errorf("silence must be positive, got %d", cfg.SilenceMs)
	}
	if cfg.MaxUtteranceMs <= cfg.SilenceMs {
		return nil, fmt.Errorf("max utterance %dms must exceed silence %dms", cfg.MaxUtteranceMs, cfg.SilenceMs)
	}
	bytesPerMs := format.BytesPerMs()
	if bytesPerMs <= 0 {
		return nil, fmt.Errorf("invalid audio format %+v", format)
	}
	return &Segmenter{cfg: cfg, bytesPerMs: bytesPerMs}, nil
}

// RMS returns the normalized root mean square energy of a PCM16 frame
func RMS(frame []byte) float64 {
	samples := audio.Samples(frame)
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Push feeds one frame. When boundary is true the utterance is complete;
// utterance is nil when it was too short to be speech.
func (s *Segmenter) Push(frame []byte) (utterance []byte, boundary bool) {
	frameMs := len(frame) / s.bytesPerMs
	voiced := RMS(frame) >= s.cfg.Threshold

	if !s.inSpeech {
		if !voiced {
			return nil, false
		}
		s.inSpeech = true
	}

	s.buffer = append(s.buffer, frame...)
	s.totalMs += frameMs
	if voiced {
		s.speechMs += frameMs
		s.silenceMs = 0
	} else {
		s.silenceMs += frameMs
	}

	if s.silenceMs >= s.cfg.SilenceMs || s.totalMs >= s.cfg.MaxUtteranceMs {
		return s.take(), true
	}
	return nil, false
}

// Flush returns any pending utterance, ignoring the silence requirement
func (s *Segmenter) Flush() []byte {
	if !s.inSpeech {
		return nil
	}
	return s.take()
}

func (s *Segmenter) take() []byte {
	var out []byte
	if s.speechMs >= s.cfg.MinSpeechMs {
		out = s.buffer
	}
	s.inSpeech = false
	s.buffer = nil
	s.speechMs = 0
	s.silenceMs = 0
	s.totalMs = 0
	return out
}
