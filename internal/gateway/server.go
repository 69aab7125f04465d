package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/gateway/ws"
	"github.com/dohr-michael/taskd/internal/scheduler"
	"github.com/dohr-michael/taskd/internal/storage"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// OwnerHeader sets the routing owner of a request.
const OwnerHeader = "X-Taskd-Owner"

// Executor is the task surface served over HTTP and WS.
type Executor interface {
	ws.TaskService
	List() []tasks.Snapshot
}

// HistoryReader lists journaled task outcomes.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]storage.HistoryRecord, error)
}

// UsageReader reports per-owner outcome counters.
type UsageReader interface {
	Snapshot() map[string]storage.Usage
}

// Options configures a Server. History, Usage and Schedules are optional.
type Options struct {
	Host      string
	Port      int
	Bus       *events.Bus
	Executor  Executor
	Types     func() []string
	History   HistoryReader
	Usage     UsageReader
	Schedules func() []scheduler.EntryStatus
}

// Server is the taskd gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	exec       Executor
	types      func() []string
	history    HistoryReader
	usage      UsageReader
	schedules  func() []scheduler.EntryStatus
}

// NewServer creates a new gateway server.
func NewServer(opts Options) *Server {
	hub := ws.NewHub(opts.Bus, opts.Executor)

	s := &Server{
		hub:       hub,
		bus:       opts.Bus,
		exec:      opts.Executor,
		types:     opts.Types,
		history:   opts.History,
		usage:     opts.Usage,
		schedules: opts.Schedules,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(ownerMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/types", s.handleTypes)
	r.Get("/api/queue", s.handleQueue)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/history", s.handleHistory)
	r.Get("/api/usage", s.handleUsage)
	r.Get("/api/schedules", s.handleSchedules)
	r.Get("/api/ws", hub.ServeWS)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleSubmit)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetTask)
			r.Delete("/", s.handleCancel)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Put("/priority", s.handlePriority)
		})
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler: r,
	}

	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("taskd gateway listening", "addr", ln.Addr().String())
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// ownerMiddleware stores the request owner, from the header or the owner
// query parameter, in the request context.
func ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(OwnerHeader)
		if owner == "" {
			owner = r.URL.Query().Get("owner")
		}
		if owner != "" {
			r = r.WithContext(events.ContextWithOwner(r.Context(), owner))
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// statusFor maps submission errors to HTTP statuses.
func statusFor(err error) int {
	switch ws.ErrorCode(err) {
	case ws.CodeUnknownType, ws.CodeValidation, ws.CodeInvalidPriority, ws.CodeInvalidParams:
		return http.StatusBadRequest
	case ws.CodeDuplicate:
		return http.StatusConflict
	case ws.CodeClosed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// limitParam parses ?limit=, defaulting to def.
func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	var types []string
	if s.types != nil {
		types = s.types()
	}
	if types == nil {
		types = []string{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exec.QueueStatus())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, ws.CodeInvalidParams, err.Error())
		return
	}

	filter := events.Filter{
		Owner:  events.OwnerFromContext(r.Context()),
		TaskID: r.URL.Query().Get("task"),
	}
	for _, t := range r.URL.Query()["type"] {
		filter.Types = append(filter.Types, events.EventType(t))
	}
	out := s.bus.Query(filter, limit)
	if out == nil {
		out = []events.Event{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ws.CodeClosed, "history is disabled")
		return
	}
	limit, err := limitParam(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, ws.CodeInvalidParams, err.Error())
		return
	}
	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ws.CodeInternal, err.Error())
		return
	}
	if records == nil {
		records = []storage.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, http.StatusServiceUnavailable, ws.CodeClosed, "usage tracking is disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.usage.Snapshot())
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	entries := []scheduler.EntryStatus{}
	if s.schedules != nil {
		entries = s.schedules()
	}
	writeJSON(w, http.StatusOK, entries)
}
