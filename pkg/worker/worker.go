package worker

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/appregistry"
	"github.com/nithinkrishnamurthi/neutrino/pkg/ipc"
	"github.com/nithinkrishnamurthi/neutrino/pkg/log"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultHeartbeatInterval is used when Config.HeartbeatInterval is zero.
// It matches the orchestrator's default missed-heartbeat detection window.
const DefaultHeartbeatInterval = 5 * time.Second

// Config configures a single worker process's lifetime.
type Config struct {
	SocketPath string
	WorkerID   string
	AppEntry   string
	Capability types.ResourceVector
	// HeartbeatInterval is how often the worker reports liveness and
	// resource usage. Zero uses DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration
}

// Worker is the process-local state of one worker: its connection to the
// orchestrator and the handlers it dispatches tasks to.
type Worker struct {
	cfg         Config
	conn        *ipc.Conn
	logger      zerolog.Logger
	outstanding int
	stopCh      chan struct{}
}

// Run dials the orchestrator, announces readiness, and serves tasks until
// the orchestrator sends a Shutdown record or the connection drops. It
// returns nil when a Shutdown record arrives (graceful or not) and a
// non-nil error on any other termination.
func Run(cfg Config) error {
	logger := log.WithComponent("worker").With().
		Str("worker_id", cfg.WorkerID).
		Str("app_entry", cfg.AppEntry).
		Logger()

	conn, err := ipc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("worker: dial %s: %w", cfg.SocketPath, err)
	}
	defer conn.Close()

	w := &Worker{cfg: cfg, conn: conn, logger: logger, stopCh: make(chan struct{})}
	return w.serve()
}

func (w *Worker) serve() error {
	ready := ipc.WorkerReady{
		WorkerID: w.cfg.WorkerID,
		PID:      os.Getpid(),
		Capability: ipc.Vector{
			CPUs:     w.cfg.Capability.CPUs,
			GPUs:     w.cfg.Capability.GPUs,
			MemoryGB: w.cfg.Capability.MemoryGB,
		},
	}
	if err := w.sendRecord(ipc.TagWorkerReady, ready); err != nil {
		return err
	}

	registry := ipc.RouteRegistry{}
	for _, name := range appregistry.Names() {
		registry.Routes = append(registry.Routes, ipc.RouteDescriptor{Handler: name})
	}
	if err := w.sendRecord(ipc.TagRouteRegistry, registry); err != nil {
		return err
	}

	go w.heartbeatLoop()

	w.logger.Info().Msg("worker ready, serving tasks")

	for {
		frame, err := w.conn.Recv()
		if err != nil {
			close(w.stopCh)
			return fmt.Errorf("worker: connection closed: %w", err)
		}

		switch frame.Tag {
		case ipc.TagTaskAssignment:
			var assignment ipc.TaskAssignment
			if err := ipc.Decode(frame, &assignment); err != nil {
				w.logger.Error().Err(err).Msg("malformed task assignment")
				continue
			}
			w.handleTask(assignment)

		case ipc.TagShutdown:
			var shutdown ipc.Shutdown
			_ = ipc.Decode(frame, &shutdown)
			close(w.stopCh)
			w.logger.Info().Bool("graceful", shutdown.Graceful).Msg("shutdown requested")
			return nil

		default:
			w.logger.Warn().Str("tag", frame.Tag.String()).Msg("unexpected frame from orchestrator")
		}
	}
}

func (w *Worker) handleTask(a ipc.TaskAssignment) {
	w.outstanding++
	defer func() { w.outstanding-- }()

	taskLogger := w.logger.With().Str("task_id", a.TaskID).Logger()

	handler, err := appregistry.Lookup(a.Handler)
	if err != nil {
		taskLogger.Error().Err(err).Str("handler", a.Handler).Msg("no such handler")
		w.sendResult(ipc.TaskResult{
			TaskID:      a.TaskID,
			OK:          false,
			ErrorKind:   string(types.ErrorKindHandler),
			ErrorDetail: err.Error(),
		})
		return
	}

	start := time.Now()
	result, err := runHandler(handler, a.Args)
	duration := time.Since(start)

	if err != nil {
		taskLogger.Error().Err(err).Dur("duration", duration).Msg("handler returned error")
		w.sendResult(ipc.TaskResult{
			TaskID:      a.TaskID,
			OK:          false,
			ErrorKind:   string(types.ErrorKindHandler),
			ErrorDetail: err.Error(),
		})
		return
	}

	taskLogger.Info().Dur("duration", duration).Msg("handler completed")
	w.sendResult(toTaskResult(a.TaskID, result))
}

// runHandler recovers a handler panic into an error so one bad task
// never takes down the whole worker process.
func runHandler(handler appregistry.Handler, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(args)
}

// toTaskResult shapes a handler's return value per the worker-result
// representation: a map[string]any passes through as structured JSON, a
// []byte is base64-encoded into result_bytes, anything else is wrapped
// under a "value" key.
func toTaskResult(taskID string, result any) ipc.TaskResult {
	switch v := result.(type) {
	case nil:
		return ipc.TaskResult{TaskID: taskID, OK: true}
	case map[string]any:
		return ipc.TaskResult{TaskID: taskID, OK: true, Result: v}
	case []byte:
		return ipc.TaskResult{TaskID: taskID, OK: true, ResultBytes: base64.StdEncoding.EncodeToString(v)}
	default:
		return ipc.TaskResult{TaskID: taskID, OK: true, Result: map[string]any{"value": v}}
	}
}

func (w *Worker) sendResult(r ipc.TaskResult) {
	if err := w.sendRecord(ipc.TagTaskResult, r); err != nil {
		w.logger.Error().Err(err).Str("task_id", r.TaskID).Msg("failed to send task result")
	}
}

func (w *Worker) heartbeatLoop() {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hb := ipc.Heartbeat{
				WorkerID:         w.cfg.WorkerID,
				OutstandingCount: w.outstanding,
				ResidentMemoryMB: residentMemoryMB(),
			}
			if err := w.sendRecord(ipc.TagHeartbeat, hb); err != nil {
				w.logger.Error().Err(err).Msg("failed to send heartbeat")
			}
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) sendRecord(tag ipc.Tag, v any) error {
	frame, err := ipc.Encode(tag, v)
	if err != nil {
		return err
	}
	return w.conn.Send(frame)
}
