//go:build !portaudio

package capture

import (
	"context"
	"errors"
	"io"

	"github.com/yegors/memorec/internal/audio"
)

// PortAudioDevice is unavailable in builds without the portaudio tag
type PortAudioDevice struct {
	Format          audio.Format
	FramesPerBuffer int
}

// PortAudioAvailable reports whether the binary was built with PortAudio
const PortAudioAvailable = false

// Name implements Device
func (d PortAudioDevice) Name() string { return "portaudio" }

// Open implements Device
func (d PortAudioDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	return nil, errors.New("built without portaudio support (rebuild with -tags portaudio)")
}
