package httpfront

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/nithinkrishnamurthi/neutrino/pkg/capacity"
	"github.com/nithinkrishnamurthi/neutrino/pkg/events"
	"github.com/nithinkrishnamurthi/neutrino/pkg/ipc"
	"github.com/nithinkrishnamurthi/neutrino/pkg/log"
	"github.com/nithinkrishnamurthi/neutrino/pkg/pool"
	"github.com/nithinkrishnamurthi/neutrino/pkg/routetable"
	"github.com/nithinkrishnamurthi/neutrino/pkg/scheduler"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/rs/zerolog"
)

// Config configures one HTTP front-end instance.
type Config struct {
	BindAddr        string
	DefaultDeadline time.Duration
	MaxBodyBytes    int64
}

// DefaultConfig returns the front-end defaults: a 30s task deadline and
// a max body size matching the IPC layer's max frame size, since a body
// larger than that could never be framed to a worker anyway.
func DefaultConfig() Config {
	return Config{
		DefaultDeadline: 30 * time.Second,
		MaxBodyBytes:    ipc.MaxFrameSize,
	}
}

// Server is the HTTP front-end for one node. Its route table is held
// behind an atomic pointer so a route-spec reload can swap in a freshly
// built, immutable table without a restart or a lock on the request
// path.
type Server struct {
	cfg       Config
	pool      *pool.Pool
	scheduler *scheduler.Scheduler
	broker    *events.Broker
	logger    zerolog.Logger
	router    atomic.Pointer[mux.Router]
}

// NewServer builds the mux router for table's routes plus /health and
// /capacity, wired against p and s.
func NewServer(cfg Config, table *routetable.Table, p *pool.Pool, s *scheduler.Scheduler, broker *events.Broker) *Server {
	srv := &Server{
		cfg:       cfg,
		pool:      p,
		scheduler: s,
		broker:    broker,
		logger:    log.WithComponent("httpfront"),
	}
	srv.Reload(table)
	return srv
}

// Reload builds a fresh router from table and atomically swaps it in.
// In-flight requests keep running against the router they started with.
func (s *Server) Reload(table *routetable.Table) {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowedHandler)

	for _, entry := range table.Entries() {
		entry := entry
		router.HandleFunc(entry.PathPattern, s.taskHandler(entry)).Methods(entry.Method)
	}

	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/capacity", s.capacityHandler).Methods(http.MethodGet)

	s.router.Store(router)
}

// Handler returns the http.Handler to mount, e.g. on an http.Server.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.router.Load().ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server on cfg.BindAddr and blocks.
func (s *Server) ListenAndServe() error {
	server := &http.Server{
		Addr:         s.cfg.BindAddr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info().Str("bind", s.cfg.BindAddr).Msg("http front-end listening")
	return server.ListenAndServe()
}

// healthHandler returns 200 iff the pool has at least one worker in Idle
// or Busy, or the pool is empty (startup grace).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	workers := s.pool.Snapshot()
	healthy := len(workers) == 0
	for _, wk := range workers {
		if wk.State == types.WorkerIdle || wk.State == types.WorkerBusy {
			healthy = true
			break
		}
	}

	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) capacityHandler(w http.ResponseWriter, r *http.Request) {
	snap := capacity.Snapshot(s.pool.Snapshot())
	writeJSON(w, http.StatusOK, snap)
}
