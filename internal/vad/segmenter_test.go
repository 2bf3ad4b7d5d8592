package vad

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/memorec/internal/audio"
)

var format = audio.Format{SampleRate: 16000, Channels: 1}

// frame returns 100ms of a constant-amplitude signal
func frame(amplitude int16) []byte {
	buf := make([]byte, 100*format.BytesPerMs())
	for i := 0; i < len(buf); i += 2 {
		v := amplitude
		if (i/2)%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(buf[i:], uint16(v))
	}
	return buf
}

func newSegmenter(t *testing.T) *Segmenter {
	t.Helper()
	s, err := NewSegmenter(Config{
		Threshold:      0.05,
		SilenceMs:      300,
		MinSpeechMs:    200,
		MaxUtteranceMs: 2000,
	}, format)
	require.NoError(t, err)
	return s
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS(frame(0)))
	assert.InDelta(t, 0.5, RMS(frame(16384)), 0.001)
}

func TestSilenceNeverProducesBoundary(t *testing.T) {
	s := newSegmenter(t)
	for i := 0; i < 50; i++ {
		_, boundary := s.Push(frame(0))
		assert.False(t, boundary)
	}
	assert.Nil(t, s.Flush())
}

func TestSpeechThenSilence(t *testing.T) {
	s := newSegmenter(t)
	loud := frame(8000)

	for i := 0; i < 5; i++ {
		_, boundary := s.Push(loud)
		require.False(t, boundary)
	}
	for i := 0; i < 2; i++ {
		_, boundary := s.Push(frame(0))
		require.False(t, boundary)
	}

	utt, boundary := s.Push(frame(0))
	assert.True(t, boundary)
	assert.Len(t, utt, 8*len(loud))
}

func TestShortNoiseIsEmptyBoundary(t *testing.T) {
	s := newSegmenter(t)
	s.Push(frame(8000))

	var utt []byte
	boundary := false
	for i := 0; i < 3 && !boundary; i++ {
		utt, boundary = s.Push(frame(0))
	}
	assert.True(t, boundary)
	assert.Nil(t, utt)
}

func TestMaxUtteranceForcesBoundary(t *testing.T) {
	s := newSegmenter(t)
	boundaries := 0
	for i := 0; i < 40; i++ {
		if _, boundary := s.Push(frame(8000)); boundary {
			boundaries++
		}
	}
	assert.Equal(t, 2, boundaries)
}

func TestFlushReturnsPendingSpeech(t *testing.T) {
	s := newSegmenter(t)
	for i := 0; i < 3; i++ {
		s.Push(frame(8000))
	}
	assert.Len(t, s.Flush(), 3*len(frame(0)))
	assert.Nil(t, s.Flush())
}

func TestNewSegmenterValidation(t *testing.T) {
	_, err := NewSegmenter(Config{Threshold: 0, SilenceMs: 1, MaxUtteranceMs: 2}, format)
	assert.Error(t, err)
	_, err = NewSegmenter(Config{Threshold: 0.1, SilenceMs: 0, MaxUtteranceMs: 2}, format)
	assert.Error(t, err)
	_, err = NewSegmenter(Config{Threshold: 0.1, SilenceMs: 5, MaxUtteranceMs: 5}, format)
	assert.Error(t, err)
	_, err = NewSegmenter(Config{Threshold: 0.1, SilenceMs: 5, MaxUtteranceMs: 50}, audio.Format{})
	assert.Error(t, err)
}
