package segment

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/memorec/pkg/logger"
)

func TestIsFileName(t *testing.T) {
	assert.True(t, IsFileName(FileName(time.Now())))
	assert.True(t, IsFileName("23-59-59.mp3"))
	for _, name := range []string{"memo.html", "memo.sqlite", "memo.sqlite-wal", "1-00-05.mp3", "10-00-05.mp3.bak", "../10-00-05.mp3", "10-00-05.wav"} {
		assert.False(t, IsFileName(name), name)
	}
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 5, 0, time.Local)
	assert.Equal(t, "10-00-05.mp3", FileName(ts))

	ts = time.Date(2024, 5, 1, 23, 59, 59, 999, time.Local)
	assert.Equal(t, "23-59-59.mp3", FileName(ts))
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, RawEncoder{}, logger.NewNop())

	seg, err := w.Open("10-00-00.mp3", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "10-00-00.mp3", seg.Name())

	_, err = seg.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	_, err = seg.Write([]byte{4})
	require.NoError(t, err)
	assert.Equal(t, int64(4), seg.Written())
	require.NoError(t, seg.Close())

	data, err := os.ReadFile(filepath.Join(dir, "10-00-00.mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestCloseWithoutAudioLeavesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, RawEncoder{}, logger.NewNop())

	seg, err := w.Open("10-00-00.mp3", time.Now())
	require.NoError(t, err)
	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close())

	info, err := os.Stat(seg.Path())
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestWriteAfterClose(t *testing.T) {
	w := NewWriter(t.TempDir(), RawEncoder{}, logger.NewNop())
	seg, err := w.Open("a.mp3", time.Now())
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	_, err = seg.Write([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenFailsOnMissingDirectory(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "missing"), RawEncoder{}, logger.NewNop())
	_, err := w.Open("a.mp3", time.Now())
	assert.Error(t, err)
}

type failingEncoder struct{ closeErr error }

func (f failingEncoder) NewEncoder(dst io.Writer) (Encoder, error) {
	return &failingProcess{Writer: dst, err: f.closeErr}, nil
}

type failingProcess struct {
	io.Writer
	err error
}

func (p *failingProcess) Close() error { return p.err }

func TestEncoderErrorOnEmptySegmentIsTolerated(t *testing.T) {
	w := NewWriter(t.TempDir(), failingEncoder{closeErr: errors.New("no input")}, logger.NewNop())

	seg, err := w.Open("empty.mp3", time.Now())
	require.NoError(t, err)
	assert.NoError(t, seg.Close())

	seg, err = w.Open("full.mp3", time.Now())
	require.NoError(t, err)
	_, err = seg.Write([]byte{1, 2})
	require.NoError(t, err)
	assert.Error(t, seg.Close())
}

func TestFFmpegArgs(t *testing.T) {
	args := FFmpegEncoder{SampleRate: 44100, Channels: 1, Bitrate: "64k"}.Args()
	assert.Contains(t, args, "44100")
	assert.Contains(t, args, "64k")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}
