package pool

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nithinkrishnamurthi/neutrino/pkg/events"
	"github.com/nithinkrishnamurthi/neutrino/pkg/ipc"
	"github.com/nithinkrishnamurthi/neutrino/pkg/log"
	"github.com/nithinkrishnamurthi/neutrino/pkg/metrics"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/rs/zerolog"
)

// Config configures a worker pool for a single app entry (a single
// language/runtime's worker binary, pre-forked WorkerCount times).
type Config struct {
	WorkerCount int
	WorkerBinary string
	AppEntry     string
	SocketDir    string
	Capability   types.ResourceVector

	// MissedHeartbeatLimit is how many consecutive missed heartbeats mark
	// a worker unhealthy and trigger a kill + respawn.
	MissedHeartbeatLimit int

	// RecycleAfterTasks retires and replaces a worker once it has
	// completed this many tasks. Zero disables task-count recycling.
	RecycleAfterTasks uint64
	// RecycleAfterRSSMB retires a worker once its reported RSS reaches
	// this many megabytes. Zero disables memory-based recycling.
	RecycleAfterRSSMB float64
	// RecycleAfterAge retires a worker once it has run this long. Zero
	// disables age-based recycling.
	RecycleAfterAge time.Duration

	RespawnBackoffMin time.Duration
	RespawnBackoffMax time.Duration

	// HeartbeatInterval is both the interval workers are told (via
	// environment) to report on and the window the health monitor uses to
	// judge a heartbeat missed. Zero uses DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration
}

// DefaultHeartbeatInterval is used when Config.HeartbeatInterval is zero.
const DefaultHeartbeatInterval = 5 * time.Second

// heartbeatInterval returns the configured heartbeat interval, or
// DefaultHeartbeatInterval if unset.
func (p *Pool) heartbeatInterval() time.Duration {
	if p.cfg.HeartbeatInterval > 0 {
		return p.cfg.HeartbeatInterval
	}
	return DefaultHeartbeatInterval
}

// DefaultConfig returns the pool's default worker count and respawn
// backoff bounds.
func DefaultConfig() Config {
	return Config{
		WorkerCount:          4,
		MissedHeartbeatLimit: 3,
		RespawnBackoffMin:    200 * time.Millisecond,
		RespawnBackoffMax:    30 * time.Second,
	}
}

// Pool manages a fixed-size set of pre-forked worker processes for one
// app entry.
type Pool struct {
	cfg     Config
	logger  zerolog.Logger
	broker  *events.Broker
	listener net.Listener

	mu      sync.RWMutex
	workers map[string]*workerHandle

	respawnAttempts int32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a pool. Call Start to spawn workers and begin accepting
// connections.
func New(cfg Config, broker *events.Broker) *Pool {
	return &Pool{
		cfg:     cfg,
		logger:  log.WithComponent("pool").With().Str("app_entry", cfg.AppEntry).Logger(),
		broker:  broker,
		workers: make(map[string]*workerHandle),
		stopCh:  make(chan struct{}),
	}
}

// Start opens the pool's listening unix socket, spawns the configured
// number of workers, and begins the accept, health-monitor, and recycler
// loops.
func (p *Pool) Start() error {
	if err := os.MkdirAll(p.cfg.SocketDir, 0o755); err != nil {
		return fmt.Errorf("pool: create socket dir: %w", err)
	}

	socketPath := filepath.Join(p.cfg.SocketDir, fmt.Sprintf("%s.sock", p.cfg.AppEntry))
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("pool: listen on %s: %w", socketPath, err)
	}
	p.listener = ln

	p.wg.Add(1)
	go p.acceptLoop()

	for i := 0; i < p.cfg.WorkerCount; i++ {
		if err := p.spawnWorker(""); err != nil {
			p.logger.Error().Err(err).Msg("initial worker spawn failed")
		}
	}

	p.wg.Add(2)
	go p.healthMonitorLoop()
	go p.recyclerLoop()

	p.logger.Info().Int("worker_count", p.cfg.WorkerCount).Str("socket", socketPath).Msg("pool started")
	return nil
}

// Stop asks every worker to shut down gracefully, then closes the
// listener and waits for background loops to exit.
func (p *Pool) Stop(drainTimeout time.Duration) {
	close(p.stopCh)

	p.mu.RLock()
	handles := make([]*workerHandle, 0, len(p.workers))
	for _, h := range p.workers {
		handles = append(handles, h)
	}
	p.mu.RUnlock()

	var drainWG sync.WaitGroup
	for _, h := range handles {
		drainWG.Add(1)
		go func(h *workerHandle) {
			defer drainWG.Done()
			p.drainWorker(h, drainTimeout)
		}(h)
	}
	drainWG.Wait()

	if p.listener != nil {
		_ = p.listener.Close()
	}
	p.wg.Wait()
}

// drainWorker asks h to shut down gracefully and waits for its exit,
// which waitForExit's own cmd.Wait() observes and signals on h.exited —
// drainWorker never calls cmd.Wait() itself, since exec.Cmd.Wait() may
// only be called once per process.
func (p *Pool) drainWorker(h *workerHandle, timeout time.Duration) {
	h.setState(types.WorkerDraining)
	frame, err := ipc.Encode(ipc.TagShutdown, ipc.Shutdown{Graceful: true, Deadline: timeout})
	if err == nil && h.conn != nil {
		_ = h.conn.Send(frame)
	}

	select {
	case <-h.exited:
	case <-time.After(timeout):
		if h.cmd != nil && h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		<-h.exited
	}
}

// spawnWorker starts a new worker process. id reuses an existing worker's
// identity string across a respawn (the OS process changes, the logical
// identity doesn't); pass "" to mint a fresh identity for a new slot.
func (p *Pool) spawnWorker(id string) error {
	if id == "" {
		id = uuid.New().String()
	}
	h := newWorkerHandle(id)
	h.capability = p.cfg.Capability

	socketPath := filepath.Join(p.cfg.SocketDir, fmt.Sprintf("%s.sock", p.cfg.AppEntry))
	cmd := exec.Command(p.cfg.WorkerBinary, socketPath, id, p.cfg.AppEntry)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), fmt.Sprintf("NEUTRINO_WORKER_HEARTBEAT_INTERVAL=%s", p.heartbeatInterval()))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pool: start worker process: %w", err)
	}
	h.cmd = cmd

	p.mu.Lock()
	p.workers[id] = h
	p.mu.Unlock()

	p.logger.Info().Str("worker_id", id).Int("pid", cmd.Process.Pid).Msg("worker spawned")
	p.broker.Publish(&events.Event{Type: events.EventWorkerSpawned, WorkerID: id})
	metrics.PoolWorkerTransitions.WithLabelValues("none", string(types.WorkerSpawning)).Inc()

	p.wg.Add(1)
	go p.waitForExit(h)

	return nil
}

// waitForExit blocks on the worker process's exit and triggers respawn,
// unless h was marked for a planned exit (recycling already spawned its
// replacement, or the pool is shutting down).
func (p *Pool) waitForExit(h *workerHandle) {
	defer p.wg.Done()
	defer close(h.exited)

	err := h.cmd.Wait()

	from := h.setState(types.WorkerExited)
	h.abandon()
	metrics.PoolWorkerTransitions.WithLabelValues(string(from), string(types.WorkerExited)).Inc()

	p.mu.Lock()
	delete(p.workers, h.id)
	p.mu.Unlock()

	logEvent := p.logger.Info()
	if err != nil {
		logEvent = p.logger.Warn().Err(err)
	}
	logEvent.Str("worker_id", h.id).Msg("worker exited")
	p.broker.Publish(&events.Event{Type: events.EventWorkerExited, WorkerID: h.id, Message: errString(err)})

	select {
	case <-p.stopCh:
		return
	default:
	}

	if h.isPlannedExit() {
		return
	}

	p.respawnWithBackoff(h.id)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
