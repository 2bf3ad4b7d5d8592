package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/internal/procgroup"
)

// Device opens the physical microphone as a live PCM16LE byte stream.
// Closing the returned reader releases the device.
type Device interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FFmpegDevice captures through ffmpeg (pulse, alsa, avfoundation, dshow)
type FFmpegDevice struct {
	Path        string
	InputFormat string
	InputDevice string
	Format      audio.Format
}

// Name implements Device
func (d FFmpegDevice) Name() string { return "ffmpeg" }

// Args returns the ffmpeg command line
func (d FFmpegDevice) Args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", d.InputFormat,
		"-i", d.InputDevice,
		"-ac", strconv.Itoa(d.Format.Channels),
		"-ar", strconv.Itoa(d.Format.SampleRate),
		"-f", "s16le",
		"pipe:1",
	}
}

// Open implements Device
func (d FFmpegDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	path := d.Path
	if path == "" {
		path = "ffmpeg"
	}
	return startProcess(ctx, path, d.Args())
}

// ArecordDevice captures through ALSA's arecord
type ArecordDevice struct {
	Path        string
	InputDevice string
	Format      audio.Format
}

// Name implements Device
func (d ArecordDevice) Name() string { return "arecord" }

// Args returns the arecord command line
func (d ArecordDevice) Args() []string {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE",
		"-r", strconv.Itoa(d.Format.SampleRate),
		"-c", strconv.Itoa(d.Format.Channels),
	}
	if d.InputDevice != "" {
		args = append(args, "-D", d.InputDevice)
	}
	return args
}

// Open implements Device
func (d ArecordDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	path := d.Path
	if path == "" {
		path = "arecord"
	}
	return startProcess(ctx, path, d.Args())
}

// processReader is the stdout of a capture process
type processReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	once   sync.Once
	err    error
}

func startProcess(ctx context.Context, path string, args []string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	procgroup.Detach(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	return &processReader{ReadCloser: stdout, cmd: cmd, stderr: &stderr}, nil
}

// Close interrupts the process so it flushes, then reaps it
func (p *processReader) Close() error {
	p.once.Do(func() {
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			_ = p.cmd.Process.Kill()
		}

		waited := make(chan error, 1)
		go func() { waited <- p.cmd.Wait() }()

		select {
		case err := <-waited:
			var exitErr *exec.ExitError
			// Exit caused by our own interrupt is the normal path.
			if err != nil && !errors.As(err, &exitErr) {
				p.err = err
			}
		case <-time.After(3 * time.Second):
			_ = p.cmd.Process.Kill()
			<-waited
		}
	})
	return p.err
}
