// Package viewapi serves the local view of a running watcher over HTTP: the
// current snapshot and connection status, the mission-type catalog, filter
// edits that feed the debouncer, banner dismissal, and a websocket stream
// that pushes every engine update to connected clients.
package viewapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
	isync "github.com/tonimelisma/fissurewatch/internal/sync"
)

// maxFilterBody caps PUT /api/filter request bodies.
const maxFilterBody = 64 << 10

// HTTP server timeouts. Writes are unbounded so the stream stays open.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// EngineView is the read side of the sync engine the API exposes.
type EngineView interface {
	Status() isync.StatusInfo
	Stats() isync.EngineStats
	LastActivity() time.Time
	MissionTypes() []string
}

// FilterInput accepts filter edits. Implemented by *sync.Debouncer.
type FilterInput interface {
	Submit(criteria fissure.Criteria)
	Pending() fissure.Criteria
}

// Server is the view API. Feed it engine updates with Publish.
type Server struct {
	engine EngineView
	filter FilterInput
	hub    *Hub
	logger *slog.Logger
	router chi.Router

	mu    sync.Mutex
	state viewState
}

// NewServer builds the router. filter may be nil, in which case
// PUT /api/filter answers 501.
func NewServer(engine EngineView, filter FilterInput, logger *slog.Logger) *Server {
	s := &Server{
		engine: engine,
		filter: filter,
		hub:    NewHub(logger),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/status", s.handleStatus)
		r.Get("/missions", s.handleMissions)
		r.Put("/filter", s.handleFilter)
		r.Post("/dismiss", s.handleDismiss)
		r.Get("/stream", s.handleStream)
	})

	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Publish folds an engine update into the view and pushes it to stream
// clients.
func (s *Server) Publish(u isync.Update) {
	s.mu.Lock()
	s.state.apply(u)
	s.mu.Unlock()

	s.broadcast(msgUpdate)
}

// Dismiss lowers the "has update" banner.
func (s *Server) Dismiss() {
	s.mu.Lock()
	s.state.hasUpdate = false
	s.mu.Unlock()

	s.broadcast(msgUpdate)
}

// View returns the current client view.
func (s *Server) View() *View {
	pending := fissure.Criteria{}
	if s.filter != nil {
		pending = s.filter.Pending()
	}

	status := s.engine.Status().Status.String()
	types := s.engine.MissionTypes()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.view(status, pending, types)
}

// Serve serves the API on ln until ctx is canceled, then shuts down
// gracefully. The caller binds ln so the bound address is known up front.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("view API listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("viewapi: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("view API shutdown", slog.String("error", err.Error()))
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("viewapi: serve: %w", err)
	}

	s.logger.Info("view API stopped")

	return nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.View())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	info := s.engine.Status()
	stats := s.engine.Stats()

	v := StatusView{
		Status:    info.Status.String(),
		Since:     info.Since,
		LastError: info.LastError,
		Sessions:  stats.Sessions,
		Polls:     stats.PollsCompleted,
		Changes:   stats.Changes,
		Errors:    stats.Errors,
	}

	if last := s.engine.LastActivity(); !last.IsZero() {
		v.LastActivity = &last
	}

	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleMissions(w http.ResponseWriter, _ *http.Request) {
	types := s.engine.MissionTypes()
	if types == nil {
		types = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"missionTypes": types})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if s.filter == nil {
		writeError(w, http.StatusNotImplemented, "filter edits are disabled")

		return
	}

	var body CriteriaJSON

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFilterBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter body: "+err.Error())

		return
	}

	criteria, err := body.criteria()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	s.filter.Submit(criteria)

	s.logger.Debug("filter submitted", slog.String("criteria", criteria.String()))
	s.broadcast(msgUpdate)

	writeJSON(w, http.StatusAccepted, map[string]any{"pending": NewCriteriaJSON(s.filter.Pending())})
}

func (s *Server) handleDismiss(w http.ResponseWriter, _ *http.Request) {
	s.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", slog.String("error", err.Error()))

		return
	}
	defer conn.CloseNow()

	first := func() ([]byte, error) {
		return json.Marshal(StreamMessage{Type: msgSnapshot, View: s.View()})
	}

	err = s.hub.serve(r.Context(), conn, first)

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
	default:
		s.logger.Debug("stream client disconnected", slog.String("error", err.Error()))
	}
}

// broadcast pushes the current view to every stream client.
func (s *Server) broadcast(msgType string) {
	if s.hub.Count() == 0 {
		return
	}

	data, err := json.Marshal(StreamMessage{Type: msgType, View: s.View()})
	if err != nil {
		s.logger.Error("encoding stream message", slog.String("error", err.Error()))

		return
	}

	s.hub.Broadcast(data)
}

// logRequests logs each request at debug level with its request id.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("view API request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
