package session

import (
	"time"
)

// Recognition event types
const (
	EventBoundary = "boundary" // an utterance was finalized
	EventFinal    = "final"    // the trailing utterance flushed at shutdown
	EventError    = "error"    // the recognizer failed; no more events follow
)

// RecognitionEvent is one message from the recognition pump to the controller
type RecognitionEvent struct {
	Type      string    // boundary, final or error
	Text      string    // raw recognizer output
	Timestamp time.Time // when the boundary was detected
	Err       error
}
