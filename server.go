package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/audio"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/cloudsync"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/config"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/eventlog"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/server"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/session"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/store"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

// requestValidate validates API request bodies.
var requestValidate = validator.New(validator.WithRequiredStructEnabled())

// Server is the HTTP control surface: session commands, library queries, and
// the WebSocket status feed.
type Server struct {
	config       *config.Config
	session      *session.Session
	store        *store.Store
	hub          *server.Hub
	version      *VersionChecker
	eventLogPath string
}

// NewServer returns a Server wired to the given session and store.
func NewServer(cfg *config.Config, sess *session.Session, st *store.Store, hub *server.Hub, eventLogPath string) *Server {
	return &Server{
		config:       cfg,
		session:      sess,
		store:        st,
		hub:          hub,
		version:      NewVersionChecker(),
		eventLogPath: eventLogPath,
	}
}

// --- Response helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps store sentinel errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateFileName), errors.Is(err, store.ErrNotSoftDeleted):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// parseJSON reads, parses, and validates a JSON request body. Returns the
// parsed value and true on success; on failure the error response has
// already been written.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if err := requestValidate.Struct(&v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid field %s: failed %q validation", e.Field(), e.Tag()))
			return v, false
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return v, false
	}
	return v, true
}

// --- Session commands ---

// writeSessionError maps session command errors onto HTTP statuses. A
// command rejected because of the current state is a conflict, not a server
// failure.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrSessionActive),
		errors.Is(err, types.ErrNotRecording),
		errors.Is(err, types.ErrNotPaused):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionPause(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Pause(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionResume(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Resume(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Stop(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Discard(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Status())
}

// --- Library queries and edits ---

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deleted") == "1" {
		s.writeJSON(w, http.StatusOK, s.store.All())
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.Active())
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

type renameRequest struct {
	Title string `json:"title" validate:"required,max=256"`
}

func (s *Server) handleRenameRecording(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[renameRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.store.Rename(r.PathValue("id"), req.Title); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

func (s *Server) handleFavoriteRecording(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[favoriteRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.store.SetFavorite(r.PathValue("id"), req.Favorite); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type moveRequest struct {
	FolderID string `json:"folder_id" validate:"omitempty,max=64"`
}

func (s *Server) handleMoveRecording(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[moveRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.store.SetFolder(r.PathValue("id"), req.FolderID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SoftDelete(r.PathValue("id"), time.Now()); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRestoreRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Restore(r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// handlePurgeRecording destroys a soft-deleted record and its local file.
func (s *Server) handlePurgeRecording(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.Get(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.store.Purge(id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	path := filepath.Join(s.config.RecordingsDir(), rec.FileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove purged file", "path", path, "error", err)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// --- Folders ---

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Folders())
}

type folderRequest struct {
	Name      string `json:"name" validate:"required,max=128"`
	SortOrder int    `json:"sort_order" validate:"omitempty,gte=0"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[folderRequest](s, w, r)
	if !ok {
		return
	}
	folder := &store.FolderRecord{Name: req.Name, SortOrder: req.SortOrder}
	if err := s.store.InsertFolder(folder); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, folder)
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[folderRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.store.RenameFolder(r.PathValue("id"), req.Name); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFolder(r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Environment ---

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"platform": runtime.GOOS,
		"devices":  audio.Devices(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.version.Info())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	events, hasMore, err := eventlog.ReadLast(s.eventLogPath, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"has_more": hasMore,
	})
}

// intQuery parses an integer query parameter, falling back on absence or
// garbage.
func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) handleSyncTest(w http.ResponseWriter, r *http.Request) {
	if err := cloudsync.TestConnection(s.config.SyncSnapshot()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Routing ---

// SetupRoutes returns an [http.Handler] with all control API routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/pause", s.handleSessionPause)
	mux.HandleFunc("POST /api/session/resume", s.handleSessionResume)
	mux.HandleFunc("POST /api/session/stop", s.handleSessionStop)
	mux.HandleFunc("POST /api/session/discard", s.handleSessionDiscard)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /api/recordings", s.handleListRecordings)
	mux.HandleFunc("GET /api/recordings/{id}", s.handleGetRecording)
	mux.HandleFunc("POST /api/recordings/{id}/rename", s.handleRenameRecording)
	mux.HandleFunc("POST /api/recordings/{id}/favorite", s.handleFavoriteRecording)
	mux.HandleFunc("POST /api/recordings/{id}/folder", s.handleMoveRecording)
	mux.HandleFunc("POST /api/recordings/{id}/restore", s.handleRestoreRecording)
	mux.HandleFunc("DELETE /api/recordings/{id}", s.handleDeleteRecording)
	mux.HandleFunc("DELETE /api/recordings/{id}/purge", s.handlePurgeRecording)

	mux.HandleFunc("GET /api/folders", s.handleListFolders)
	mux.HandleFunc("POST /api/folders", s.handleCreateFolder)
	mux.HandleFunc("POST /api/folders/{id}/rename", s.handleRenameFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", s.handleDeleteFolder)

	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("POST /api/sync/test", s.handleSyncTest)

	mux.Handle("GET /ws", s.hub)

	return securityHeaders(mux)
}

// securityHeaders wraps handlers with standard security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server. Returns the *http.Server for graceful
// shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Port())
	slog.Info("starting control API", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
