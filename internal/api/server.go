// Package api provides the local HTTP API for controlling recording and
// reading captured history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"keytrail/internal/archive"
	"keytrail/internal/config"
	"keytrail/internal/export"
	"keytrail/internal/recorder"
	"keytrail/internal/ui"
)

// Server provides HTTP API for remote control
type Server struct {
	recorder  *recorder.Recorder
	configMgr *config.Manager
	store     *archive.Store
	logger    *slog.Logger
	wsMgr     *WSManager

	hubOnce sync.Once
	mu      sync.Mutex
	httpSrv *http.Server
}

// NewServer creates a new API server. store may be nil when archiving is
// disabled.
func NewServer(rec *recorder.Recorder, configMgr *config.Manager, store *archive.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		recorder:  rec,
		configMgr: configMgr,
		store:     store,
		logger:    logger,
	}
	s.wsMgr = newWSManager(s)
	rec.OnMove(func(m recorder.Move) {
		s.wsMgr.BroadcastMove(rec.GetHistory().ID(), m)
	})
	rec.OnState(s.wsMgr.BroadcastState)
	return s
}

// Handler returns the API routes wrapped in auth and panic recovery.
func (s *Server) Handler() http.Handler {
	s.hubOnce.Do(func() { go s.wsMgr.start() })

	mux := http.NewServeMux()
	mux.Handle("/{$}", ui.Handler(s.logger))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/recording/start", s.handleStart)
	mux.HandleFunc("/api/recording/stop", s.handleStop)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/filter", s.handleFilter)
	mux.HandleFunc("/api/history/export", s.handleExport)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/{id}", s.handleSession)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)

	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start serves the API on the loopback interface. It blocks until Shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		s.logger.Error("API server failed to listen", "addr", addr, "error", err)
		return err
	}

	server := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	s.httpSrv = server
	s.mu.Unlock()

	s.logger.Info("API server listening", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		s.logger.Error("API server stopped", "error", err)
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsMgr.stop()
	s.mu.Lock()
	server := s.httpSrv
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("API request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)

		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if token := s.configMgr.Get().API.Token; token != "" {
			auth := r.Header.Get("Authorization")
			// browsers cannot set headers on websocket upgrades
			if auth != "Bearer "+token && r.URL.Query().Get("token") != token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var subErr *recorder.SubscriptionError
	switch {
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, recorder.ErrRecordingActive):
		return http.StatusConflict
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &subErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("API request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.configMgr.Get()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history":             s.recorder.GetHistory().Info(),
		"recording":           s.recorder.Recording(),
		"pooling_interval_ms": cfg.Recording.PoolingIntervalMS,
		"exit_key":            cfg.Recording.ExitKey,
		"archive":             s.store != nil,
	})
}

// handleStart handles POST /api/recording/start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.recorder.StartRecording(); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.GetHistory().Info())
}

// handleStop handles POST /api/recording/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.recorder.StopRecording(); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.GetHistory().Info())
}

type historyResponse struct {
	recorder.Info
	Records []recorder.Record `json:"records"`
}

// handleHistory handles GET (read, optional ?type=) and DELETE (clear)
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h := s.recorder.GetHistory()
		moves := h.Moves()
		if raw := r.URL.Query().Get("type"); raw != "" {
			t, err := recorder.ParseMoveType(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			filtered := moves[:0]
			for _, m := range moves {
				if m.Type() == t {
					filtered = append(filtered, m)
				}
			}
			moves = filtered
		}
		writeJSON(w, http.StatusOK, historyResponse{Info: h.Info(), Records: recorder.ToRecords(moves)})

	case http.MethodDelete:
		if err := s.recorder.CleanHistory(); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.recorder.GetHistory().Info())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleFilter handles POST /api/history/filter?type=<MOVE_TYPE>
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	t, err := recorder.ParseMoveType(r.URL.Query().Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	removed := s.recorder.GetHistory().FilterOut(t)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":    t,
		"removed": removed,
	})
}

// handleExport handles GET /api/history/export?format=json|csv
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h := s.recorder.GetHistory()
	s.serveExport(w, r, h.ID(), h)
}

func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, name string, src export.MoveSource) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = s.configMgr.Get().Export.Format
	}
	f, err := export.ParseFormat(raw)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+f.Ext()))
	if err := export.Export(w, src, string(f)); err != nil {
		s.logger.Error("export failed", "error", err)
	}
}

// handleSessions handles GET (list archived) and POST (archive current history)
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Archive disabled", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.store.ListSessions(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)

	case http.MethodPost:
		sess, err := s.store.SaveSession(r.Context(), s.recorder.GetHistory(), r.URL.Query().Get("label"))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSession handles GET and DELETE /api/sessions/{id}. GET with ?format=
// downloads the archived moves as an export.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Archive disabled", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		sess, err := s.store.GetSession(r.Context(), id)
		if err != nil {
			s.fail(w, err)
			return
		}
		moves, err := s.store.LoadMoves(r.Context(), id)
		if err != nil {
			s.fail(w, err)
			return
		}
		if r.URL.Query().Has("format") {
			s.serveExport(w, r, id, export.Moves(moves))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"session": sess,
			"records": recorder.ToRecords(moves),
		})

	case http.MethodDelete:
		if err := s.store.DeleteSession(r.Context(), id); err != nil {
			s.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConfig handles GET (read) and POST (update) for configuration
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.configMgr.Get())

	case http.MethodPost:
		newCfg := config.DefaultConfig()
		if err := json.NewDecoder(r.Body).Decode(newCfg); err != nil {
			http.Error(w, "Invalid configuration data", http.StatusBadRequest)
			return
		}

		if err := s.configMgr.Set(newCfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.configMgr.Save(); err != nil {
			s.logger.Error("failed to save received config", "error", err)
			http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
			return
		}

		s.logger.Info("configuration updated", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
