package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yegors/memorec/internal/metrics"
	"github.com/yegors/memorec/internal/storage/sqlite"
	"github.com/yegors/memorec/pkg/logger"
)

func newIndex(t *testing.T) *sqlite.SessionStorage {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	index, err := sqlite.NewSessionStorage(db, logger.NewNop())
	require.NoError(t, err)
	return index
}

func newTestServer(t *testing.T, cfg RouterConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(cfg, logger.NewNop()).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, RouterConfig{Dir: t.TempDir()})

	resp, body := get(t, srv.URL+"/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["index"])
}

func TestServesMemoAndSegments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memo.html"), []byte("<p>(10:00:05) こんにちは。</p>\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-00-05.mp3"), []byte("ID3"), 0o644))
	srv := newTestServer(t, RouterConfig{Dir: dir})

	resp, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "こんにちは")
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-cache")

	resp, body = get(t, srv.URL+"/10-00-05.mp3")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ID3", string(body))

	resp, _ = get(t, srv.URL+"/11-00-00.mp3")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestViewerServesOnlyMemoAndSegments(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"memo.html", "10-00-05.mp3", "memo.sqlite", "memo.sqlite-wal", "memo.sqlite-shm", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	srv := newTestServer(t, RouterConfig{Dir: dir})

	for _, name := range []string{"memo.sqlite", "memo.sqlite-wal", "memo.sqlite-shm", "notes.txt"} {
		resp, _ := get(t, srv.URL+"/"+name)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, name)
	}
	resp, _ := get(t, srv.URL+"/..%2fetc%2fpasswd")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := get(t, srv.URL+"/memo.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "memo.html", string(body))
	resp, body = get(t, srv.URL+"/10-00-05.mp3")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10-00-05.mp3", string(body))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-cache")
}

func TestRequestLogLevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := NewRouter(RouterConfig{Dir: t.TempDir()}, &logger.Logger{Logger: zap.New(core)})
	srv := httptest.NewServer(router.Routes())
	t.Cleanup(srv.Close)

	get(t, srv.URL+"/api/v1/health")
	get(t, srv.URL+"/memo.sqlite")

	requests := logs.FilterMessage("HTTP request").AllUntimed()
	require.Len(t, requests, 2)
	assert.Equal(t, zapcore.DebugLevel, requests[0].Level)
	assert.Equal(t, int64(http.StatusOK), requests[0].ContextMap()["status"])
	assert.Equal(t, zapcore.InfoLevel, requests[1].Level)
	assert.Equal(t, int64(http.StatusNotFound), requests[1].ContextMap()["status"])
	assert.NotEmpty(t, requests[0].ContextMap()["request_id"])
}

func TestSessionEndpointsWithoutIndex(t *testing.T) {
	srv := newTestServer(t, RouterConfig{Dir: t.TempDir()})

	for _, path := range []string{"/api/v1/sessions/current", "/api/v1/segments", "/api/v1/utterances"} {
		resp, _ := get(t, srv.URL+path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestSessionEndpoints(t *testing.T) {
	index := newIndex(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	id, err := index.StartSession("/tmp/memo", start)
	require.NoError(t, err)

	_, err = index.StoreSegment(&sqlite.SegmentRecord{FileName: "10-00-00.mp3", OpenedAt: start, ClosedAt: start})
	require.NoError(t, err)
	_, err = index.StoreSegment(&sqlite.SegmentRecord{FileName: "10-00-00.mp3", OpenedAt: start, ClosedAt: start.Add(5 * time.Second), Bytes: 10, Referenced: true})
	require.NoError(t, err)
	_, err = index.StoreUtterance(&sqlite.UtteranceRecord{Text: "こんにちは", Normalized: "こんにちは", DetectedAt: start.Add(5 * time.Second), SegmentFile: "10-00-05.mp3"})
	require.NoError(t, err)

	srv := newTestServer(t, RouterConfig{Dir: t.TempDir(), Index: index})

	_, body := get(t, srv.URL+"/api/v1/sessions/current")
	var session sqlite.SessionRecord
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, id, session.ID)

	_, body = get(t, srv.URL+"/api/v1/segments")
	var segments []sqlite.SegmentRecord
	require.NoError(t, json.Unmarshal(body, &segments))
	assert.Len(t, segments, 2)

	_, body = get(t, srv.URL+"/api/v1/segments?orphaned=true")
	segments = nil
	require.NoError(t, json.Unmarshal(body, &segments))
	require.Len(t, segments, 1)
	assert.False(t, segments[0].Referenced)

	_, body = get(t, srv.URL+"/api/v1/utterances")
	var utterances []sqlite.UtteranceRecord
	require.NoError(t, json.Unmarshal(body, &utterances))
	require.Len(t, utterances, 1)
	assert.Equal(t, "10-00-05.mp3", utterances[0].SegmentFile)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Rotations.Inc()

	srv := newTestServer(t, RouterConfig{Dir: t.TempDir(), Gatherer: reg})
	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "memorec_segment_rotations_total 1")
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, RouterConfig{Dir: t.TempDir(), CORSAllowedOrigins: []string{"http://viewer.local"}})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://viewer.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://viewer.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://elsewhere")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServerShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(listener.Addr().String(), NewRouter(RouterConfig{Dir: t.TempDir()}, logger.NewNop()).Routes(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	resp, _ := get(t, "http://"+listener.Addr().String()+"/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
