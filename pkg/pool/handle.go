package pool

import (
	"os/exec"
	"sync"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/ipc"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
)

// workerHandle is the orchestrator's view of one worker process.
type workerHandle struct {
	mu sync.Mutex

	id         string
	cmd        *exec.Cmd
	socketPath string
	conn       *ipc.Conn

	state            types.WorkerState
	capability       types.ResourceVector
	outstandingCount int
	tasksCompleted   uint64
	residentMemoryMB float64
	spawnedAt        time.Time
	lastAssignedAt   time.Time
	lastHeartbeat    time.Time
	missedHeartbeats int
	lastError        string

	// outstanding maps a task ID to the channel its dispatcher is waiting
	// on for a TaskResult. One-shot: closed and removed after delivery.
	outstanding map[string]chan ipc.TaskResult

	// exited is closed exactly once, by waitForExit, after the worker
	// process has exited and its cleanup has run. drainWorker waits on it
	// instead of calling cmd.Wait() itself.
	exited chan struct{}

	// plannedExit marks that this worker's exit was initiated by recycling,
	// which already spawned its replacement, so waitForExit must not
	// respawn a second one. Pool shutdown is detected through stopCh.
	plannedExit bool
}

func newWorkerHandle(id string) *workerHandle {
	return &workerHandle{
		id:          id,
		state:       types.WorkerSpawning,
		spawnedAt:   time.Now(),
		outstanding: make(map[string]chan ipc.TaskResult),
		exited:      make(chan struct{}),
	}
}

// markPlannedExit records that this worker's drain was initiated by the
// pool itself rather than a crash.
func (h *workerHandle) markPlannedExit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plannedExit = true
}

func (h *workerHandle) isPlannedExit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plannedExit
}

func (h *workerHandle) snapshot() types.WorkerInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	pid := 0
	if h.cmd != nil && h.cmd.Process != nil {
		pid = h.cmd.Process.Pid
	}

	return types.WorkerInfo{
		ID:               h.id,
		PID:              pid,
		State:            h.state,
		Capability:       h.capability,
		OutstandingCount: h.outstandingCount,
		TasksCompleted:   h.tasksCompleted,
		ResidentMemoryMB: h.residentMemoryMB,
		SpawnedAt:        h.spawnedAt,
		LastAssignedAt:   h.lastAssignedAt,
		LastError:        h.lastError,
	}
}

func (h *workerHandle) setState(s types.WorkerState) (from types.WorkerState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	from = h.state
	h.state = s
	return from
}

func (h *workerHandle) registerWait(taskID string) chan ipc.TaskResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan ipc.TaskResult, 1)
	h.outstanding[taskID] = ch
	h.outstandingCount++
	h.lastAssignedAt = time.Now()
	return ch
}

// deliver routes a TaskResult to its waiting dispatcher, if still waiting.
func (h *workerHandle) deliver(result ipc.TaskResult) {
	h.mu.Lock()
	ch, ok := h.outstanding[result.TaskID]
	if ok {
		delete(h.outstanding, result.TaskID)
		h.outstandingCount--
		h.tasksCompleted++
	}
	h.mu.Unlock()

	if ok {
		ch <- result
		close(ch)
	}
}

// abandon cancels every outstanding wait, used when a worker dies with
// tasks still in flight.
func (h *workerHandle) abandon() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.outstanding {
		close(ch)
		delete(h.outstanding, id)
	}
	h.outstandingCount = 0
}

func (h *workerHandle) recordHeartbeat(hb ipc.Heartbeat) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastHeartbeat = time.Now()
	h.missedHeartbeats = 0
	h.residentMemoryMB = hb.ResidentMemoryMB
}

func (h *workerHandle) ageSince() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Since(h.spawnedAt)
}
