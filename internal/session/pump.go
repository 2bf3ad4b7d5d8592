package session

import (
	"context"
	"fmt"
	"time"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/internal/metrics"
	"github.com/yegors/memorec/internal/recognizer"
	"github.com/yegors/memorec/pkg/logger"
)

// RecognitionPump feeds captured audio to a recognizer frame by frame and
// reports boundaries as events
type RecognitionPump struct {
	session recognizer.Session
	chunker *audio.FrameChunker
	clock   func() time.Time
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewRecognitionPump creates a pump emitting frames of frameMs milliseconds
func NewRecognitionPump(sess recognizer.Session, format audio.Format, frameMs int, m *metrics.Metrics, log *logger.Logger) *RecognitionPump {
	if m == nil {
		m = metrics.New(nil)
	}
	return &RecognitionPump{
		session: sess,
		chunker: audio.NewFrameChunker(format, frameMs),
		clock:   time.Now,
		metrics: m,
		logger:  log.Named("recognition-pump"),
	}
}

// Run reads chunks until the channel closes, then flushes the recognizer and
// sends one EventFinal. out is closed when Run returns. A recognizer error is
// sent as EventError and returned.
func (p *RecognitionPump) Run(ctx context.Context, chunks <-chan []byte, out chan<- RecognitionEvent) error {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return p.finish(ctx, out)
			}
			frames, err := p.chunker.Push(chunk)
			if err != nil {
				return p.fail(ctx, out, err)
			}
			for _, frame := range frames {
				if err := p.accept(ctx, frame, out); err != nil {
					return err
				}
			}
		}
	}
}

func (p *RecognitionPump) accept(ctx context.Context, frame []byte, out chan<- RecognitionEvent) error {
	p.metrics.RecognitionFrames.Inc()

	boundary, err := p.session.AcceptFrame(frame)
	if err != nil {
		return p.fail(ctx, out, err)
	}
	if !boundary {
		return nil
	}
	return p.send(ctx, out, RecognitionEvent{
		Type:      EventBoundary,
		Text:      p.session.Result(),
		Timestamp: p.clock(),
	})
}

// finish drains the partial frame and asks for the final result
func (p *RecognitionPump) finish(ctx context.Context, out chan<- RecognitionEvent) error {
	if rest := p.chunker.Flush(); len(rest) > 0 {
		if err := p.accept(ctx, rest, out); err != nil {
			return err
		}
	}

	text, err := p.session.FinalResult()
	if err != nil {
		return p.fail(ctx, out, err)
	}
	p.logger.Debug("Recognition stream ended")

	return p.send(ctx, out, RecognitionEvent{
		Type:      EventFinal,
		Text:      text,
		Timestamp: p.clock(),
	})
}

func (p *RecognitionPump) fail(ctx context.Context, out chan<- RecognitionEvent, err error) error {
	err = fmt.Errorf("recognition: %w", err)
	if sendErr := p.send(ctx, out, RecognitionEvent{Type: EventError, Err: err, Timestamp: p.clock()}); sendErr != nil {
		p.logger.Error("Recognizer failed", logger.Error(err))
	}
	return err
}

func (p *RecognitionPump) send(ctx context.Context, out chan<- RecognitionEvent, event RecognitionEvent) error {
	select {
	case out <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
