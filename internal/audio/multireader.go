package audio

import (
	"io"
	"sync"

	"github.com/yegors/memorec/pkg/logger"
)

// DefaultMaxPending bounds how much audio a slow reader may fall behind
// before Write blocks (about 12s of 44.1kHz mono PCM16).
const DefaultMaxPending = 1024 * 1024

// MultiReader fans a single audio writer out to several independent readers.
// Every reader sees every byte written after it was created, in order. A
// reader that falls maxPending bytes behind blocks the writer instead of
// losing audio.
type MultiReader struct {
	mu         sync.Mutex
	cond       *sync.Cond
	readers    map[string]*readerState
	maxPending int
	logger     *logger.Logger
	closed     bool
}

// readerState tracks the queued chunks of each reader
type readerState struct {
	pending      [][]byte
	pendingBytes int
	closed       bool
}

// NewMultiReader creates a new multi-reader. maxPending <= 0 selects DefaultMaxPending.
func NewMultiReader(maxPending int, log *logger.Logger) *MultiReader {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	mr := &MultiReader{
		readers:    make(map[string]*readerState),
		maxPending: maxPending,
		logger:     log.Named("multireader"),
	}
	mr.cond = sync.NewCond(&mr.mu)
	return mr
}

// Write copies p into the queue of every open reader and wakes them up. It
// blocks while any reader is maxPending bytes behind and fails with
// io.ErrClosedPipe once the multi-reader is closed.
func (mr *MultiReader) Write(p []byte) (int, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	for !mr.closed {
		id, full := mr.fullReader()
		if !full {
			break
		}
		mr.logger.Debug("Reader fell behind, holding capture", logger.String("reader_id", id))
		mr.cond.Wait()
	}
	if mr.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}

	for _, reader := range mr.readers {
		if reader.closed {
			continue
		}
		chunk := make([]byte, len(p))
		copy(chunk, p)
		reader.pending = append(reader.pending, chunk)
		reader.pendingBytes += len(chunk)
	}

	mr.cond.Broadcast()
	return len(p), nil
}

// fullReader returns a reader whose queue reached maxPending
func (mr *MultiReader) fullReader() (string, bool) {
	for id, reader := range mr.readers {
		if !reader.closed && reader.pendingBytes >= mr.maxPending {
			return id, true
		}
	}
	return "", false
}

// CreateReader creates a new reader. Reusing an open id returns a second
// client over the same queue.
func (mr *MultiReader) CreateReader(id string) io.ReadCloser {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if reader, exists := mr.readers[id]; !exists || reader.closed {
		mr.readers[id] = &readerState{}
		mr.logger.Debug("Created new reader", logger.String("reader_id", id))
	}

	return &multiReaderClient{mr: mr, id: id}
}

// RemoveReader removes a reader; a blocked Read returns io.EOF
func (mr *MultiReader) RemoveReader(id string) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if reader, exists := mr.readers[id]; exists {
		reader.closed = true
		delete(mr.readers, id)
		mr.cond.Broadcast()
		mr.logger.Debug("Removed reader", logger.String("reader_id", id))
	}
}

// Close stops accepting writes and releases a blocked writer. Readers drain
// what is already queued and then observe io.EOF.
func (mr *MultiReader) Close() error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if mr.closed {
		return nil
	}
	mr.closed = true
	mr.cond.Broadcast()
	return nil
}

// multiReaderClient is a ReadCloser that reads from a MultiReader
type multiReaderClient struct {
	mr *MultiReader
	id string
}

// Read blocks until data is queued for this reader or the reader is closed
func (c *multiReaderClient) Read(p []byte) (int, error) {
	mr := c.mr
	mr.mu.Lock()
	defer mr.mu.Unlock()

	for {
		reader, exists := mr.readers[c.id]
		if !exists || reader.closed {
			return 0, io.EOF
		}
		if len(reader.pending) > 0 {
			head := reader.pending[0]
			n := copy(p, head)
			if n == len(head) {
				reader.pending[0] = nil
				reader.pending = reader.pending[1:]
			} else {
				reader.pending[0] = head[n:]
			}
			reader.pendingBytes -= n
			// A writer may be waiting for room
			mr.cond.Broadcast()
			return n, nil
		}
		if mr.closed {
			return 0, io.EOF
		}
		mr.cond.Wait()
	}
}

// Close closes the reader
func (c *multiReaderClient) Close() error {
	c.mr.RemoveReader(c.id)
	return nil
}
