package audio

import (
	"bytes"
	"fmt"
)

// Format describes raw PCM16 little-endian audio
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerMs returns how many bytes of PCM16 audio make up one millisecond
func (f Format) BytesPerMs() int {
	return (f.SampleRate * f.Channels * 2) / 1000
}

// FrameChunker regroups arbitrarily sized capture reads into fixed-length frames
type FrameChunker struct {
	frameBytes int
	buffer     *bytes.Buffer
}

// NewFrameChunker creates a chunker emitting frames of frameMs milliseconds
func NewFrameChunker(format Format, frameMs int) *FrameChunker {
	frameBytes := frameMs * format.BytesPerMs()
	// Keep frames sample aligned
	if align := 2 * format.Channels; align > 0 && frameBytes%align != 0 {
		frameBytes -= frameBytes % align
	}
	if frameBytes <= 0 {
		frameBytes = 2
	}

	return &FrameChunker{
		frameBytes: frameBytes,
		buffer:     bytes.NewBuffer(nil),
	}
}

// FrameBytes returns the size of every full frame
func (c *FrameChunker) FrameBytes() int {
	return c.frameBytes
}

// Push buffers data and returns every complete frame now available
func (c *FrameChunker) Push(data []byte) ([][]byte, error) {
	if _, err := c.buffer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	var frames [][]byte
	for c.buffer.Len() >= c.frameBytes {
		frame := make([]byte, c.frameBytes)
		if _, err := c.buffer.Read(frame); err != nil {
			return nil, fmt.Errorf("failed to read from buffer: %w", err)
		}
		frames = append(frames, frame)
	}

	return frames, nil
}

// Flush returns whatever partial frame remains and empties the buffer
func (c *FrameChunker) Flush() []byte {
	if c.buffer.Len() == 0 {
		return nil
	}
	rest := make([]byte, c.buffer.Len())
	copy(rest, c.buffer.Bytes())
	c.buffer.Reset()
	return rest
}
