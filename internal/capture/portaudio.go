//go:build portaudio

package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/yegors/memorec/internal/audio"
)

// PortAudioDevice reads the default input device through PortAudio
type PortAudioDevice struct {
	Format          audio.Format
	FramesPerBuffer int
}

// PortAudioAvailable reports whether the binary was built with PortAudio
const PortAudioAvailable = true

// Name implements Device
func (d PortAudioDevice) Name() string { return "portaudio" }

// Open implements Device
func (d PortAudioDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	frames := d.FramesPerBuffer
	if frames <= 0 {
		frames = 1024
	}
	buffer := make([]int16, frames*d.Format.Channels)

	stream, err := portaudio.OpenDefaultStream(d.Format.Channels, 0, float64(d.Format.SampleRate), frames, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio open: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio start: %w", err)
	}

	return &portAudioReader{stream: stream, buffer: buffer}, nil
}

type portAudioReader struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []int16
	pending []byte
	closed  bool
	once    sync.Once
}

func (r *portAudioReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		if r.closed {
			return 0, io.EOF
		}
		if err := r.stream.Read(); err != nil {
			if r.closed {
				return 0, io.EOF
			}
			return 0, err
		}
		r.pending = make([]byte, len(r.buffer)*2)
		for i, v := range r.buffer {
			binary.LittleEndian.PutUint16(r.pending[2*i:], uint16(v))
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *portAudioReader) Close() error {
	var err error
	r.once.Do(func() {
		// Stop unblocks a pending Read before the stream is torn down.
		err = r.stream.Stop()
		r.mu.Lock()
		r.closed = true
		if closeErr := r.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.mu.Unlock()
		portaudio.Terminate()
	})
	return err
}
