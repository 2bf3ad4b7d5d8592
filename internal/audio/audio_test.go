package audio

import (
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/memorec/pkg/logger"
)

func TestMultiReaderDeliversToEveryReader(t *testing.T) {
	mr := NewMultiReader(0, logger.NewNop())
	recognition := mr.CreateReader("recognition")
	archive := mr.CreateReader("archive")

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	for i, r := range []io.Reader{recognition, archive} {
		wg.Add(1)
		go func(i int, r io.Reader) {
			defer wg.Done()
			data, err := io.ReadAll(r)
			assert.NoError(t, err)
			results[i] = data
		}(i, r)
	}

	for i := 0; i < 100; i++ {
		_, err := mr.Write([]byte{byte(i), byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, mr.Close())
	wg.Wait()

	assert.Len(t, results[0], 200)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, byte(99), results[1][199])
}

func TestMultiReaderWriteAfterClose(t *testing.T) {
	mr := NewMultiReader(0, logger.NewNop())
	require.NoError(t, mr.Close())

	_, err := mr.Write([]byte{1})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestMultiReaderBlocksSlowReaderInsteadOfDropping(t *testing.T) {
	mr := NewMultiReader(4, logger.NewNop())
	r := mr.CreateReader("slow")

	var written atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, err := mr.Write([]byte{byte(i), byte(i)})
			assert.NoError(t, err)
			written.Add(1)
		}
		assert.NoError(t, mr.Close())
	}()

	// Two chunks fill the queue; the third Write waits for the reader
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), written.Load())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	<-done

	want := make([]byte, 0, 20)
	for i := 0; i < 10; i++ {
		want = append(want, byte(i), byte(i))
	}
	assert.Equal(t, want, data)
}

func TestMultiReaderCloseReleasesBlockedWriter(t *testing.T) {
	mr := NewMultiReader(2, logger.NewNop())
	mr.CreateReader("stuck")

	_, err := mr.Write([]byte{1, 1})
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := mr.Write([]byte{2, 2})
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, mr.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after Close")
	}
}

func TestMultiReaderRemovingSlowReaderUnblocksWriter(t *testing.T) {
	mr := NewMultiReader(2, logger.NewNop())
	fast := mr.CreateReader("fast")
	slow := mr.CreateReader("slow")

	_, err := mr.Write([]byte{1, 1})
	require.NoError(t, err)
	_, err = fast.Read(make([]byte, 2))
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := mr.Write([]byte{2, 2})
		result <- err
	}()

	require.NoError(t, slow.Close())
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after the slow reader left")
	}
}

func TestMultiReaderRemovedReaderSeesEOF(t *testing.T) {
	mr := NewMultiReader(0, logger.NewNop())
	r := mr.CreateReader("gone")
	require.NoError(t, r.Close())

	n, err := r.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestFrameChunker(t *testing.T) {
	format := Format{SampleRate: 16000, Channels: 1}
	c := NewFrameChunker(format, 10)
	require.Equal(t, 320, c.FrameBytes())

	frames, err := c.Push(make([]byte, 500))
	require.NoError(t, err)
	assert.Len(t, frames, 1)

	frames, err = c.Push(make([]byte, 200))
	require.NoError(t, err)
	assert.Len(t, frames, 1)

	assert.Len(t, c.Flush(), 60)
	assert.Nil(t, c.Flush())
}

func TestFrameChunkerKeepsSampleAlignment(t *testing.T) {
	c := NewFrameChunker(Format{SampleRate: 44100, Channels: 1}, 25)
	assert.Zero(t, c.FrameBytes()%2)
}

func TestEncodeWAV(t *testing.T) {
	format := Format{SampleRate: 16000, Channels: 1}
	pcm := []byte{1, 0, 2, 0, 3, 0}

	wav := EncodeWAV(pcm, format)
	require.Len(t, wav, wavHeaderSize+len(pcm))

	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestSamples(t *testing.T) {
	assert.Equal(t, []int16{1, -1}, Samples([]byte{1, 0, 0xff, 0xff, 7}))
}
