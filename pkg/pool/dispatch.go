package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/events"
	"github.com/nithinkrishnamurthi/neutrino/pkg/ipc"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
)

// Snapshot returns a point-in-time view of every live worker, for the
// scheduler's selection pass and the capacity reporter. It excludes
// workers that have fully exited.
func (p *Pool) Snapshot() []types.WorkerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	infos := make([]types.WorkerInfo, 0, len(p.workers))
	for _, h := range p.workers {
		infos = append(infos, h.snapshot())
	}
	return infos
}

// Capability is the resource vector every worker in this pool advertises.
func (p *Pool) Capability() types.ResourceVector {
	return p.cfg.Capability
}

// Dispatch sends task to the named worker and blocks until the worker
// returns a TaskResult, ctx is done, or the worker's connection drops.
func (p *Pool) Dispatch(ctx context.Context, workerID string, task types.Task) (ipc.TaskResult, error) {
	p.mu.RLock()
	h, ok := p.workers[workerID]
	p.mu.RUnlock()
	if !ok {
		return ipc.TaskResult{}, fmt.Errorf("pool: no such worker %s", workerID)
	}

	h.setState(types.WorkerBusy)
	waitCh := h.registerWait(task.ID)

	var deadlineNano int64
	if !task.Deadline.IsZero() {
		deadlineNano = task.Deadline.UnixNano()
	}

	assignment := ipc.TaskAssignment{
		TaskID:           task.ID,
		Method:           task.Route.Method,
		Path:             task.Route.Path,
		Handler:          task.Handler,
		Args:             task.Args,
		DeadlineUnixNano: deadlineNano,
	}
	frame, err := ipc.Encode(ipc.TagTaskAssignment, assignment)
	if err != nil {
		return ipc.TaskResult{}, err
	}

	p.broker.Publish(&events.Event{Type: events.EventTaskAssigned, TaskID: task.ID, WorkerID: workerID})

	if err := h.conn.Send(frame); err != nil {
		return ipc.TaskResult{}, fmt.Errorf("pool: send task to worker %s: %w", workerID, err)
	}

	select {
	case result, ok := <-waitCh:
		if h.snapshot().OutstandingCount == 0 {
			h.setState(types.WorkerIdle)
		}
		if !ok {
			return ipc.TaskResult{}, fmt.Errorf("pool: worker %s died with task in flight", workerID)
		}
		return result, nil
	case <-ctx.Done():
		return ipc.TaskResult{}, ctx.Err()
	}
}

// WaitForCapacity blocks until the pool reports at least one idle or
// ready worker, or ctx is done. Used by callers that prefer to retry a
// NoCapacity condition briefly rather than fail immediately.
func (p *Pool) WaitForCapacity(ctx context.Context, pollInterval time.Duration) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		for _, w := range p.Snapshot() {
			if w.State == types.WorkerIdle || w.State == types.WorkerReady {
				return true
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}
