package sqlite

import "time"

// SessionRecord is one recorder run
type SessionRecord struct {
	ID          string     `json:"id"`
	Destination string     `json:"destination"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// SegmentRecord is one closed audio file
type SegmentRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	FileName   string    `json:"file_name"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
	Bytes      int64     `json:"bytes"`
	Referenced bool      `json:"referenced"` // named by an <audio> entry in the memo
}

// UtteranceRecord is one boundary event and what the memo did with it
type UtteranceRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Text        string    `json:"text"`
	Normalized  string    `json:"normalized"`
	DetectedAt  time.Time `json:"detected_at"`
	SegmentFile string    `json:"segment_file,omitempty"` // segment opened by this utterance's rotation
	Suppressed  bool      `json:"suppressed"`
	Final       bool      `json:"final"`
}
