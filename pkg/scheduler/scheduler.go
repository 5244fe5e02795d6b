package scheduler

import (
	"errors"
	"sort"

	"github.com/nithinkrishnamurthi/neutrino/pkg/log"
	"github.com/nithinkrishnamurthi/neutrino/pkg/metrics"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNoCapacity is returned when no worker, idle or busy-eligible, has
// room to accept the task.
var ErrNoCapacity = errors.New("scheduler: no capacity for task")

// DefaultConcurrencyCeiling is the per-worker outstanding-task limit used
// when a pool doesn't override it. CPU-bound handlers should generally
// leave this at 1; only I/O-bound handlers benefit from pulling a second
// task onto a busy worker.
const DefaultConcurrencyCeiling = 1

// Config configures one pool's scheduling policy.
type Config struct {
	ConcurrencyCeiling int
}

// Scheduler selects a worker from a pool snapshot for each task. It holds
// no state of its own; all liveness data comes from the snapshot passed
// to Select.
type Scheduler struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a scheduler. A zero-value ConcurrencyCeiling is treated as
// DefaultConcurrencyCeiling.
func New(cfg Config) *Scheduler {
	if cfg.ConcurrencyCeiling <= 0 {
		cfg.ConcurrencyCeiling = DefaultConcurrencyCeiling
	}
	return &Scheduler{cfg: cfg, logger: log.WithComponent("scheduler")}
}

// Select picks the worker ID to run task against, given the pool's
// current worker snapshot. It never mutates workers; the caller is
// responsible for reserving the slot it selected (pool.Dispatch does
// this atomically by registering the outstanding wait before sending).
func (s *Scheduler) Select(workers []types.WorkerInfo, task types.Task) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	eligible := make([]types.WorkerInfo, 0, len(workers))
	for _, w := range workers {
		if !w.Capability.Dominates(task.Resources) {
			continue
		}
		eligible = append(eligible, w)
	}

	if idle := filterState(eligible, types.WorkerIdle, types.WorkerReady); len(idle) > 0 {
		sortByPreference(idle)
		metrics.TasksScheduled.Inc()
		return idle[0].ID, nil
	}

	busy := filterBusyEligible(eligible, s.cfg.ConcurrencyCeiling)
	if len(busy) > 0 {
		sortByPreference(busy)
		metrics.TasksScheduled.Inc()
		return busy[0].ID, nil
	}

	metrics.NoCapacityTotal.Inc()
	s.logger.Warn().
		Str("task_id", task.ID).
		Str("route", task.Route.Method+" "+task.Route.Path).
		Int("eligible_workers", len(eligible)).
		Msg("no capacity for task")
	return "", ErrNoCapacity
}

func filterState(workers []types.WorkerInfo, states ...types.WorkerState) []types.WorkerInfo {
	var out []types.WorkerInfo
	for _, w := range workers {
		for _, s := range states {
			if w.State == s && w.OutstandingCount == 0 {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

func filterBusyEligible(workers []types.WorkerInfo, ceiling int) []types.WorkerInfo {
	var out []types.WorkerInfo
	for _, w := range workers {
		if w.State == types.WorkerBusy && w.OutstandingCount < ceiling {
			out = append(out, w)
		}
	}
	return out
}

// sortByPreference orders candidates by fewest outstanding tasks, then by
// the worker that has gone longest since its last assignment, then by ID
// for determinism.
func sortByPreference(workers []types.WorkerInfo) {
	sort.Slice(workers, func(i, j int) bool {
		a, b := workers[i], workers[j]
		if a.OutstandingCount != b.OutstandingCount {
			return a.OutstandingCount < b.OutstandingCount
		}
		if !a.LastAssignedAt.Equal(b.LastAssignedAt) {
			return a.LastAssignedAt.Before(b.LastAssignedAt)
		}
		return a.ID < b.ID
	})
}
