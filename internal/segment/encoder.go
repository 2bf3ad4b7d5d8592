package segment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/yegors/memorec/internal/procgroup"
)

// Encoder receives PCM16 audio and writes encoded audio into a segment file
type Encoder interface {
	io.WriteCloser
}

// EncoderFactory starts one encoder per segment
type EncoderFactory interface {
	NewEncoder(dst io.Writer) (Encoder, error)
}

// RawEncoder stores PCM untouched. Useful for tests and debugging captures.
type RawEncoder struct{}

// NewEncoder implements EncoderFactory
func (RawEncoder) NewEncoder(dst io.Writer) (Encoder, error) {
	return nopCloser{dst}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// FFmpegEncoder streams PCM through an ffmpeg process that emits MP3
type FFmpegEncoder struct {
	Path       string
	SampleRate int
	Channels   int
	Bitrate    string
}

// Args returns the ffmpeg command line used for every segment
func (f FFmpegEncoder) Args() []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-i", "pipe:0",
		"-f", "mp3",
	}
	if f.Bitrate != "" {
		args = append(args, "-b:a", f.Bitrate)
	}
	return append(args, "pipe:1")
}

// NewEncoder implements EncoderFactory
func (f FFmpegEncoder) NewEncoder(dst io.Writer) (Encoder, error) {
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}

	// The process is owned by the segment; Close waits for it to drain.
	cmd := exec.CommandContext(context.Background(), path, f.Args()...)
	procgroup.Detach(cmd)
	cmd.Stdout = dst
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	return &ffmpegProcess{cmd: cmd, stdin: stdin, stderr: &stderr}, nil
}

type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	once   sync.Once
	err    error
}

func (p *ffmpegProcess) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

func (p *ffmpegProcess) Close() error {
	p.once.Do(func() {
		p.stdin.Close()
		if err := p.cmd.Wait(); err != nil {
			p.err = fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(p.stderr.Bytes()))
		}
	})
	return p.err
}
