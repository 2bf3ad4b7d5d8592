package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/memorec/internal/memo"
	"github.com/yegors/memorec/internal/segment"
	"github.com/yegors/memorec/internal/storage/sqlite"
	"github.com/yegors/memorec/pkg/logger"
)

// SessionIndex is the read side of the session index
type SessionIndex interface {
	SessionID() string
	GetSession(id string) (*sqlite.SessionRecord, error)
	GetSegments(sessionID string) ([]*sqlite.SegmentRecord, error)
	GetOrphanedSegments(sessionID string) ([]*sqlite.SegmentRecord, error)
	GetUtterances(sessionID string) ([]*sqlite.UtteranceRecord, error)
}

// Handler serves the JSON endpoints
type Handler struct {
	index     SessionIndex
	dir       string
	startTime time.Time
	logger    *logger.Logger
}

// NewHandler creates a handler. index may be nil when the index is disabled.
func NewHandler(dir string, index SessionIndex, log *logger.Logger) *Handler {
	return &Handler{
		index:     index,
		dir:       dir,
		startTime: time.Now(),
		logger:    log.Named("api-handler"),
	}
}

// GetHealth reports that the recorder is running
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"timestamp":   time.Now().UTC(),
		"uptime":      time.Since(h.startTime).String(),
		"destination": h.dir,
		"index":       h.index != nil,
	})
}

// GetCurrentSession returns the session being recorded
func (h *Handler) GetCurrentSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.currentSession(w)
	if !ok {
		return
	}

	session, err := h.index.GetSession(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load session", err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// GetSegments returns the closed segments of the current session.
// ?orphaned=true limits the list to segments the memo never references.
func (h *Handler) GetSegments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.currentSession(w)
	if !ok {
		return
	}

	var segments []*sqlite.SegmentRecord
	var err error
	if r.URL.Query().Get("orphaned") == "true" {
		segments, err = h.index.GetOrphanedSegments(id)
	} else {
		segments, err = h.index.GetSegments(id)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load segments", err)
		return
	}
	if segments == nil {
		segments = []*sqlite.SegmentRecord{}
	}
	h.writeJSON(w, http.StatusOK, segments)
}

// GetUtterances returns every boundary event of the current session
func (h *Handler) GetUtterances(w http.ResponseWriter, r *http.Request) {
	id, ok := h.currentSession(w)
	if !ok {
		return
	}

	utterances, err := h.index.GetUtterances(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load utterances", err)
		return
	}
	if utterances == nil {
		utterances = []*sqlite.UtteranceRecord{}
	}
	h.writeJSON(w, http.StatusOK, utterances)
}

// ServeMemo serves memo.html from the destination directory
func (h *Handler) ServeMemo(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.dir, memo.FileName))
}

// ServeSegment serves one segment file. Anything else in the destination
// directory, the session index included, is not exposed.
func (h *Handler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if !segment.IsFileName(name) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.dir, name))
}

func (h *Handler) currentSession(w http.ResponseWriter) (string, bool) {
	if h.index == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "session index is disabled"})
		return "", false
	}
	id := h.index.SessionID()
	if id == "" {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session started"})
		return "", false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string, err error) {
	h.logger.Error(msg, logger.Error(err))
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", logger.Error(err))
	}
}
