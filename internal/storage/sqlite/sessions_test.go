package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/memorec/pkg/logger"
)

func newTestStorage(t *testing.T) *SessionStorage {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage, err := NewSessionStorage(db, logger.NewNop())
	require.NoError(t, err)
	return storage
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStorage(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	id, err := s.StartSession("/tmp/memo", start)
	require.NoError(t, err)
	assert.Equal(t, id, s.SessionID())

	session, err := s.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/memo", session.Destination)
	assert.True(t, session.StartedAt.Equal(start))
	assert.Nil(t, session.EndedAt)

	require.NoError(t, s.EndSession(start.Add(time.Minute)))
	session, err = s.GetSession(id)
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
	assert.True(t, session.EndedAt.Equal(start.Add(time.Minute)))
}

func TestSegmentsAndOrphans(t *testing.T) {
	s := newTestStorage(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	id, err := s.StartSession("/tmp/memo", start)
	require.NoError(t, err)

	_, err = s.StoreSegment(&SegmentRecord{FileName: "10-00-00.mp3", OpenedAt: start, ClosedAt: start, Referenced: false})
	require.NoError(t, err)
	_, err = s.StoreSegment(&SegmentRecord{FileName: "10-00-01.mp3", OpenedAt: start, ClosedAt: start.Add(5 * time.Second), Bytes: 1024, Referenced: true})
	require.NoError(t, err)

	segments, err := s.GetSegments(id)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "10-00-01.mp3", segments[1].FileName)
	assert.Equal(t, int64(1024), segments[1].Bytes)
	assert.Equal(t, id, segments[0].SessionID)

	orphans, err := s.GetOrphanedSegments(id)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "10-00-00.mp3", orphans[0].FileName)
}

func TestUtterances(t *testing.T) {
	s := newTestStorage(t)
	at := time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)
	id, err := s.StartSession("/tmp/memo", at)
	require.NoError(t, err)

	_, err = s.StoreUtterance(&UtteranceRecord{Text: "こんにちは　", Normalized: "こんにちは", DetectedAt: at, SegmentFile: "10-00-05.mp3"})
	require.NoError(t, err)
	_, err = s.StoreUtterance(&UtteranceRecord{Text: " ", DetectedAt: at.Add(time.Second), Suppressed: true})
	require.NoError(t, err)

	utterances, err := s.GetUtterances(id)
	require.NoError(t, err)
	require.Len(t, utterances, 2)
	assert.Equal(t, "こんにちは", utterances[0].Normalized)
	assert.Equal(t, "10-00-05.mp3", utterances[0].SegmentFile)
	assert.True(t, utterances[1].Suppressed)
	assert.Empty(t, utterances[1].SegmentFile)
}

func TestOpenFile(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "memo.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSessionStorage(db, logger.NewNop())
	require.NoError(t, err)
}
