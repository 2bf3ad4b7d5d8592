//go:build unix

package segment

import (
	"bytes"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg writes a script that copies stdin to stdout in place of ffmpeg.
func fakeFFmpeg(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec cat\n"), 0o755))
	return path
}

func TestFFmpegEncoderRunsOutsideForegroundGroup(t *testing.T) {
	var out bytes.Buffer
	enc, err := FFmpegEncoder{Path: fakeFFmpeg(t), SampleRate: 16000, Channels: 1}.NewEncoder(&out)
	require.NoError(t, err)

	proc := enc.(*ffmpegProcess)
	pid := proc.cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "encoder must lead its own process group")
	assert.NotEqual(t, syscall.Getpgrp(), pgid, "a terminal Ctrl-C would reach the encoder")

	_, err = enc.Write([]byte("pcm-bytes"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	assert.Equal(t, "pcm-bytes", out.String())
}
