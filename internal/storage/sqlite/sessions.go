package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yegors/memorec/pkg/logger"
)

// SessionStorage indexes sessions, segments and utterances
type SessionStorage struct {
	db     *sql.DB
	logger *logger.Logger

	mu        sync.RWMutex
	sessionID string
}

// NewSessionStorage creates the tables if needed
func NewSessionStorage(db *sql.DB, log *logger.Logger) (*SessionStorage, error) {
	storage := &SessionStorage{
		db:     db,
		logger: log.Named("sqlite-index"),
	}
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize session index: %w", err)
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *SessionStorage) initDB() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			destination TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			opened_at TEXT NOT NULL,
			closed_at TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			referenced BOOLEAN NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS utterances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			text TEXT NOT NULL,
			normalized TEXT NOT NULL,
			detected_at TEXT NOT NULL,
			segment_file TEXT,
			suppressed BOOLEAN NOT NULL,
			final BOOLEAN NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_session ON segments(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_utterances_session ON utterances(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// SessionID returns the session started by StartSession
func (s *SessionStorage) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// StartSession opens a new session row and makes it current
func (s *SessionStorage) StartSession(destination string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, destination, started_at) VALUES (?, ?, ?)`,
		id, destination, startedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()

	s.logger.Debug("Session started", logger.String("session_id", id))
	return id, nil
}

// EndSession stamps the current session as finished
func (s *SessionStorage) EndSession(endedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		endedAt.Format(time.RFC3339Nano), s.SessionID(),
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// StoreSegment stores a closed segment for the current session
func (s *SessionStorage) StoreSegment(record *SegmentRecord) (int64, error) {
	if record.SessionID == "" {
		record.SessionID = s.SessionID()
	}
	result, err := s.db.Exec(
		`INSERT INTO segments (session_id, file_name, opened_at, closed_at, bytes, referenced)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.FileName,
		record.OpenedAt.Format(time.RFC3339Nano),
		record.ClosedAt.Format(time.RFC3339Nano),
		record.Bytes,
		record.Referenced,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert segment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	record.ID = id
	return id, nil
}

// StoreUtterance stores an utterance for the current session
func (s *SessionStorage) StoreUtterance(record *UtteranceRecord) (int64, error) {
	if record.SessionID == "" {
		record.SessionID = s.SessionID()
	}
	var segmentFile sql.NullString
	if record.SegmentFile != "" {
		segmentFile = sql.NullString{String: record.SegmentFile, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO utterances (session_id, text, normalized, detected_at, segment_file, suppressed, final)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.Text,
		record.Normalized,
		record.DetectedAt.Format(time.RFC3339Nano),
		segmentFile,
		record.Suppressed,
		record.Final,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert utterance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	record.ID = id
	return id, nil
}

// GetSession returns a session by ID
func (s *SessionStorage) GetSession(id string) (*SessionRecord, error) {
	var record SessionRecord
	var startedAt string
	var endedAt sql.NullString

	err := s.db.QueryRow(
		`SELECT id, destination, started_at, ended_at FROM sessions WHERE id = ?`, id,
	).Scan(&record.ID, &record.Destination, &startedAt, &endedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if record.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		record.EndedAt = &t
	}
	return &record, nil
}

// GetSegments returns the segments of a session in closing order
func (s *SessionStorage) GetSegments(sessionID string) ([]*SegmentRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, file_name, opened_at, closed_at, bytes, referenced
		FROM segments WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var records []*SegmentRecord
	for rows.Next() {
		var record SegmentRecord
		var openedAt, closedAt string
		if err := rows.Scan(&record.ID, &record.SessionID, &record.FileName,
			&openedAt, &closedAt, &record.Bytes, &record.Referenced); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if record.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
			return nil, fmt.Errorf("failed to parse opened_at: %w", err)
		}
		if record.ClosedAt, err = time.Parse(time.RFC3339Nano, closedAt); err != nil {
			return nil, fmt.Errorf("failed to parse closed_at: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// GetOrphanedSegments returns closed segments the memo never references
func (s *SessionStorage) GetOrphanedSegments(sessionID string) ([]*SegmentRecord, error) {
	all, err := s.GetSegments(sessionID)
	if err != nil {
		return nil, err
	}
	var orphans []*SegmentRecord
	for _, record := range all {
		if !record.Referenced {
			orphans = append(orphans, record)
		}
	}
	return orphans, nil
}

// GetUtterances returns the utterances of a session in detection order
func (s *SessionStorage) GetUtterances(sessionID string) ([]*UtteranceRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, text, normalized, detected_at, segment_file, suppressed, final
		FROM utterances WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query utterances: %w", err)
	}
	defer rows.Close()

	var records []*UtteranceRecord
	for rows.Next() {
		var record UtteranceRecord
		var detectedAt string
		var segmentFile sql.NullString
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Text, &record.Normalized,
			&detectedAt, &segmentFile, &record.Suppressed, &record.Final); err != nil {
			return nil, fmt.Errorf("failed to scan utterance: %w", err)
		}
		if record.DetectedAt, err = time.Parse(time.RFC3339Nano, detectedAt); err != nil {
			return nil, fmt.Errorf("failed to parse detected_at: %w", err)
		}
		if segmentFile.Valid {
			record.SegmentFile = segmentFile.String
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}
