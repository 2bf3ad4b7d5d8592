// Package session implements the rotation protocol that keeps the memo, the
// segment files and the recognizer's utterance boundaries aligned.
//
// A Controller owns the open memo and the single active segment. All of its
// methods must be called from one goroutine; Run is that goroutine when the
// controller is driven by channels.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/yegors/memorec/internal/memo"
	"github.com/yegors/memorec/internal/metrics"
	"github.com/yegors/memorec/internal/segment"
	"github.com/yegors/memorec/internal/storage/sqlite"
	"github.com/yegors/memorec/pkg/logger"
)

// ErrArchiveFinished is returned by Rotate once the archive stream has ended
var ErrArchiveFinished = errors.New("archive stream finished")

// Index records what the controller did. Failures are logged, never fatal.
type Index interface {
	StoreSegment(record *sqlite.SegmentRecord) (int64, error)
	StoreUtterance(record *sqlite.UtteranceRecord) (int64, error)
}

// Options configures a Controller
type Options struct {
	Memo       memo.Options
	Clock      func() time.Time
	Index      Index
	Metrics    *metrics.Metrics
	Recognizer io.Closer // released after the memo is closed
}

// Controller coordinates the memo and the segment writer
type Controller struct {
	dir        string
	writer     *segment.Writer
	memoOpts   memo.Options
	clock      func() time.Time
	index      Index
	metrics    *metrics.Metrics
	recognizer io.Closer
	logger     *logger.Logger

	memo             *memo.Memo
	active           *segment.Segment
	activeReferenced bool

	recognitionDone bool
	archiveDone     bool
}

// NewController creates a controller writing into dir
func NewController(dir string, writer *segment.Writer, opts Options, log *logger.Logger) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Memo.PlaybackRate == 0 {
		opts.Memo = memo.DefaultOptions()
	}

	return &Controller{
		dir:        dir,
		writer:     writer,
		memoOpts:   opts.Memo,
		clock:      opts.Clock,
		index:      opts.Index,
		metrics:    opts.Metrics,
		recognizer: opts.Recognizer,
		logger:     log.Named("session"),
	}
}

// Memo returns the open memo, nil before Bootstrap
func (c *Controller) Memo() *memo.Memo {
	return c.memo
}

// Active returns the segment currently receiving archive audio
func (c *Controller) Active() *segment.Segment {
	return c.active
}

// Bootstrap opens the memo, opens a placeholder segment named for now and
// rotates immediately. The memo's first audio reference therefore always
// names a segment that holds no audio when the rotation happens.
func (c *Controller) Bootstrap() error {
	if c.memo != nil {
		return errors.New("session already bootstrapped")
	}

	m, err := memo.Open(filepath.Join(c.dir, memo.FileName), c.memoOpts)
	if err != nil {
		return err
	}
	c.memo = m

	now := c.clock()
	placeholder, err := c.writer.Open(segment.FileName(now), now)
	if err != nil {
		return err
	}
	c.active = placeholder
	c.activeReferenced = false

	c.logger.Info("Session started",
		logger.String("dir", c.dir),
		logger.String("placeholder", placeholder.Name()))

	return c.Rotate(now)
}

// Rotate appends a reference named for at, closes the active segment and
// opens the next one under that same name. A second rotation within the same
// wall-clock second truncates the file the first one opened.
func (c *Controller) Rotate(at time.Time) error {
	if c.archiveDone {
		return ErrArchiveFinished
	}
	if c.active == nil {
		return errors.New("no active segment")
	}

	name := segment.FileName(at)
	if err := c.memo.AppendAudioRef(name); err != nil {
		return err
	}
	c.metrics.MemoEntries.WithLabelValues(metrics.EntryAudio).Inc()

	if err := c.closeActive(at); err != nil {
		return err
	}

	next, err := c.writer.Open(name, at)
	if err != nil {
		return err
	}
	c.active = next
	c.activeReferenced = true
	c.metrics.Rotations.Inc()

	c.logger.Debug("Rotated segment", logger.String("file", name))
	return nil
}

// HandleUtterance applies one boundary event. Text that normalizes to
// nothing leaves the memo and the active segment untouched.
func (c *Controller) HandleUtterance(text string, at time.Time) error {
	if c.recognitionDone {
		return errors.New("utterance after final result")
	}
	c.metrics.Boundaries.Inc()

	record := &sqlite.UtteranceRecord{
		Text:       text,
		Normalized: memo.Normalize(text),
		DetectedAt: at,
	}

	written, err := c.memo.AppendText(text, at)
	if err != nil {
		return err
	}
	if !written {
		c.metrics.EmptyUtterances.Inc()
		record.Suppressed = true
		c.storeUtterance(record)
		c.logger.Debug("Suppressed empty utterance", logger.Time("at", at))
		return nil
	}
	c.metrics.MemoEntries.WithLabelValues(metrics.EntryText).Inc()

	switch err := c.Rotate(at); {
	case errors.Is(err, ErrArchiveFinished):
		c.logger.Warn("Archive already finished, utterance has no segment",
			logger.String("text", record.Normalized))
	case err != nil:
		return err
	default:
		record.SegmentFile = c.active.Name()
	}

	c.storeUtterance(record)
	c.logger.Info("Utterance",
		logger.String("text", record.Normalized),
		logger.String("segment", record.SegmentFile))
	return nil
}

// HandleArchiveChunk writes captured audio to the active segment
func (c *Controller) HandleArchiveChunk(p []byte) error {
	if c.archiveDone {
		return ErrArchiveFinished
	}
	n, err := c.active.Write(p)
	c.metrics.ArchiveBytes.Add(float64(n))
	return err
}

// FinishRecognition writes the flushed trailing utterance, closes the memo
// and releases the recognizer. Unlike HandleUtterance the text is written
// even when it is empty.
func (c *Controller) FinishRecognition(text string, at time.Time) error {
	if c.recognitionDone {
		return nil
	}
	c.recognitionDone = true

	err := c.memo.AppendFinalText(text, at)
	if err == nil {
		c.metrics.MemoEntries.WithLabelValues(metrics.EntryFinal).Inc()
		c.storeUtterance(&sqlite.UtteranceRecord{
			Text:       text,
			Normalized: memo.Normalize(text),
			DetectedAt: at,
			Final:      true,
		})
	}

	if closeErr := c.memo.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	c.releaseRecognizer()

	c.logger.Info("Recognition finished", logger.Int("memo_entries", c.memo.Entries()))
	return err
}

// FinishArchive closes the active segment without touching the memo. The
// segment stays unreferenced unless a rotation already named it.
func (c *Controller) FinishArchive() error {
	if c.archiveDone {
		return nil
	}
	c.archiveDone = true

	if c.active == nil {
		return nil
	}
	if !c.activeReferenced {
		c.logger.Warn("Last segment is not referenced by the memo",
			logger.String("file", c.active.Name()))
	}
	return c.closeActive(c.clock())
}

// closeActive closes the active segment and records it
func (c *Controller) closeActive(at time.Time) error {
	seg := c.active
	if err := seg.Close(); err != nil {
		return err
	}

	written := seg.Written()
	c.metrics.SegmentBytes.Observe(float64(written))
	c.metrics.SegmentDuration.Observe(at.Sub(seg.OpenedAt()).Seconds())

	if c.index != nil {
		record := &sqlite.SegmentRecord{
			FileName:   seg.Name(),
			OpenedAt:   seg.OpenedAt(),
			ClosedAt:   at,
			Bytes:      written,
			Referenced: c.activeReferenced,
		}
		if _, err := c.index.StoreSegment(record); err != nil {
			c.logger.Warn("Failed to index segment", logger.Error(err))
		}
	}
	return nil
}

func (c *Controller) storeUtterance(record *sqlite.UtteranceRecord) {
	if c.index == nil {
		return
	}
	if _, err := c.index.StoreUtterance(record); err != nil {
		c.logger.Warn("Failed to index utterance", logger.Error(err))
	}
}

func (c *Controller) releaseRecognizer() {
	if c.recognizer == nil {
		return
	}
	if err := c.recognizer.Close(); err != nil {
		c.logger.Warn("Failed to release recognizer", logger.Error(err))
	}
	c.recognizer = nil
}

// Close releases whatever is still open without writing to the memo. Used
// when a session fails before Run.
func (c *Controller) Close() {
	c.abort()
}

// abort closes whatever is still open after a fatal error
func (c *Controller) abort() {
	if c.memo != nil {
		if err := c.memo.Close(); err != nil {
			c.logger.Warn("Failed to close memo", logger.Error(err))
		}
	}
	if c.active != nil && !c.archiveDone {
		c.archiveDone = true
		if err := c.active.Close(); err != nil {
			c.logger.Warn("Failed to close segment", logger.Error(err))
		}
	}
	c.releaseRecognizer()
}

// Run consumes both inbound channels until each has delivered its terminal
// event. recognition ends with an EventFinal (or EventError); archive ends
// when it is closed. Bootstrap must have been called.
func (c *Controller) Run(ctx context.Context, recognition <-chan RecognitionEvent, archive <-chan []byte) error {
	if c.memo == nil {
		return errors.New("session not bootstrapped")
	}

	for recognition != nil || archive != nil {
		select {
		case <-ctx.Done():
			c.abort()
			return ctx.Err()

		case event, ok := <-recognition:
			if !ok {
				recognition = nil
				if !c.recognitionDone {
					c.logger.Warn("Recognition ended without a final result")
					c.recognitionDone = true
					if err := c.memo.Close(); err != nil {
						c.abort()
						return err
					}
					c.releaseRecognizer()
				}
				continue
			}
			if err := c.handleEvent(event); err != nil {
				c.abort()
				return err
			}
			if event.Type == EventFinal {
				recognition = nil
			}

		case chunk, ok := <-archive:
			if !ok {
				archive = nil
				if err := c.FinishArchive(); err != nil {
					c.abort()
					return err
				}
				continue
			}
			if err := c.HandleArchiveChunk(chunk); err != nil {
				c.abort()
				return err
			}
		}
	}

	c.logger.Info("Session finished")
	return nil
}

func (c *Controller) handleEvent(event RecognitionEvent) error {
	switch event.Type {
	case EventBoundary:
		return c.HandleUtterance(event.Text, event.Timestamp)
	case EventFinal:
		return c.FinishRecognition(event.Text, event.Timestamp)
	case EventError:
		c.metrics.RecognitionErrors.Inc()
		return fmt.Errorf("recognizer failed: %w", event.Err)
	default:
		return fmt.Errorf("unknown recognition event %q", event.Type)
	}
}
