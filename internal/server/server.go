package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/stereoloc/locator/internal/observer"
	"github.com/stereoloc/locator/internal/rendezvous"
	"github.com/stereoloc/locator/pkg/core"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
	shutdownTimeout     = 5 * time.Second
)

// Config holds HTTP server settings.
type Config struct {
	Address        string
	Key            string
	StaticDir      string
	AllowedOrigins []string
}

// Coordinator is the part of the rendezvous coordinator the server drives.
type Coordinator interface {
	Locate(ctx context.Context) (*rendezvous.Result, error)
	Submit(role rendezvous.Role, payload []byte) error
	State() rendezvous.Snapshot
}

// HistoryReader returns recently persisted fixes, newest first.
type HistoryReader interface {
	RecentFixes(ctx context.Context, limit int) ([]core.Fix, error)
}

// StatusProvider reports process status for the status endpoint.
type StatusProvider interface {
	Status() any
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Coordinator Coordinator
	Hub         *observer.Hub
	History     HistoryReader
	Status      StatusProvider
	Logger      *slog.Logger
}

// Server exposes the locator over HTTP and websockets.
type Server struct {
	cfg      Config
	deps     Dependencies
	upgrader ws.Upgrader
	http     *http.Server
}

// New creates a Server. Call Handler for tests or ListenAndServe to run it.
func New(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
	}
	s.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, cfg.AllowedOrigins)
		},
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)
	mux.HandleFunc("GET /exchange", authMiddleware(s.cfg.Key, s.handleExchange))
	mux.HandleFunc("GET /location", authMiddleware(s.cfg.Key, jsonErrorMiddleware(s.handleLocation)))
	mux.HandleFunc("GET /status", authMiddleware(s.cfg.Key, jsonErrorMiddleware(s.handleStatus)))
	mux.HandleFunc("GET /history", authMiddleware(s.cfg.Key, jsonErrorMiddleware(s.handleHistory)))

	if s.cfg.StaticDir != "" {
		mux.HandleFunc("GET /{$}", s.serveStatic("index.html"))
		mux.HandleFunc("GET /camera", s.serveStatic("camera.html"))
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
		mux.HandleFunc("GET /camera.js", s.serveStatic("camera.js"))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Error 404: Not Found.", http.StatusNotFound)
	})

	return loggingMiddleware(s.deps.Logger, mux)
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("Listening", "address", s.cfg.Address)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	role, err := rendezvous.ParseRole(r.URL.Query().Get("camera"))
	if err != nil {
		http.Error(w, `Error: Invalid role. Must be "left" or "right".`, http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		s.deps.Logger.Warn("WebSocket upgrade failed", "role", role, "error", err)
		return
	}

	if err := s.deps.Hub.Serve(conn, role, s.deps.Coordinator); err != nil {
		s.deps.Logger.Debug("Observer rejected", "role", role, "error", err)
	}
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) *apiError {
	res, err := s.deps.Coordinator.Locate(r.Context())
	if err != nil {
		return attemptError(err)
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

type statusResponse struct {
	Coordinator rendezvous.Snapshot `json:"coordinator"`
	Observers   map[string]int      `json:"observers"`
	Process     any                 `json:"process,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	resp := statusResponse{
		Coordinator: s.deps.Coordinator.State(),
	}
	if s.deps.Hub != nil {
		resp.Observers = s.deps.Hub.Counts()
	}
	if s.deps.Status != nil {
		resp.Process = s.deps.Status.Status()
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) *apiError {
	if s.deps.History == nil {
		return &apiError{Status: http.StatusNotImplemented, Message: "storage backend does not keep history"}
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "limit must be a positive integer"}
		}
		limit = min(n, maxHistoryLimit)
	}

	fixes, err := s.deps.History.RecentFixes(r.Context(), limit)
	if err != nil {
		s.deps.Logger.Error("Failed to read fix history", "error", err)
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to read history"}
	}
	if fixes == nil {
		fixes = []core.Fix{}
	}
	writeJSON(w, http.StatusOK, fixes)
	return nil
}

func (s *Server) serveStatic(name string) http.HandlerFunc {
	path := filepath.Join(s.cfg.StaticDir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}
