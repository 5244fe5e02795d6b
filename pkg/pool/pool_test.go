package pool

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/events"
	"github.com/nithinkrishnamurthi/neutrino/pkg/ipc"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	return New(cfg, broker)
}

func TestWorkerHandleRegisterWaitDeliverRoundTrip(t *testing.T) {
	h := newWorkerHandle("w1")
	ch := h.registerWait("t1")

	h.deliver(ipc.TaskResult{TaskID: "t1", OK: true})

	result, ok := <-ch
	require.True(t, ok)
	assert.True(t, result.OK)
	assert.Equal(t, 0, h.snapshot().OutstandingCount)
	assert.EqualValues(t, 1, h.snapshot().TasksCompleted)
}

func TestWorkerHandleDeliverIgnoresUnknownTaskID(t *testing.T) {
	h := newWorkerHandle("w1")
	h.registerWait("t1")

	h.deliver(ipc.TaskResult{TaskID: "unknown", OK: true})

	assert.Equal(t, 1, h.snapshot().OutstandingCount)
}

func TestWorkerHandleAbandonClosesAllOutstanding(t *testing.T) {
	h := newWorkerHandle("w1")
	ch1 := h.registerWait("t1")
	ch2 := h.registerWait("t2")

	h.abandon()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.Equal(t, 0, h.snapshot().OutstandingCount)
}

func TestWorkerHandleSetStateReturnsPrevious(t *testing.T) {
	h := newWorkerHandle("w1")
	from := h.setState(types.WorkerIdle)
	assert.Equal(t, types.WorkerSpawning, from)
	assert.Equal(t, types.WorkerIdle, h.snapshot().State)
}

func TestShouldRecycleThresholds(t *testing.T) {
	p := newTestPool(t, Config{RecycleAfterTasks: 10, RecycleAfterRSSMB: 500, RecycleAfterAge: time.Hour})

	assert.False(t, p.shouldRecycle(types.WorkerInfo{TasksCompleted: 5, ResidentMemoryMB: 100, SpawnedAt: time.Now()}))
	assert.True(t, p.shouldRecycle(types.WorkerInfo{TasksCompleted: 10, ResidentMemoryMB: 100, SpawnedAt: time.Now()}))
	assert.True(t, p.shouldRecycle(types.WorkerInfo{TasksCompleted: 0, ResidentMemoryMB: 500, SpawnedAt: time.Now()}))
	assert.True(t, p.shouldRecycle(types.WorkerInfo{TasksCompleted: 0, ResidentMemoryMB: 0, SpawnedAt: time.Now().Add(-2 * time.Hour)}))
}

func TestShouldRecycleDisabledThresholdsNeverTrigger(t *testing.T) {
	p := newTestPool(t, Config{})
	assert.False(t, p.shouldRecycle(types.WorkerInfo{TasksCompleted: 1000000, ResidentMemoryMB: 1000000, SpawnedAt: time.Unix(0, 0)}))
}

// TestAcceptAndDispatch drives the pool's accept handshake and a Dispatch
// call against a fake worker process connected over a real unix socket,
// without spawning an actual subprocess.
func TestAcceptAndDispatch(t *testing.T) {
	p := newTestPool(t, Config{AppEntry: "test-app", MissedHeartbeatLimit: 3})

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	p.listener = ln
	t.Cleanup(func() { ln.Close() })

	h := newWorkerHandle("w1")
	h.capability = types.ResourceVector{CPUs: 2, GPUs: 0, MemoryGB: 4}
	p.mu.Lock()
	p.workers["w1"] = h
	p.mu.Unlock()

	p.wg.Add(1)
	go p.acceptLoop()
	t.Cleanup(func() { close(p.stopCh); ln.Close(); p.wg.Wait() })

	fakeWorkerDone := make(chan error, 1)
	go func() {
		nc, err := net.Dial("unix", socketPath)
		if err != nil {
			fakeWorkerDone <- err
			return
		}
		conn := ipc.NewConn(nc)
		defer conn.Close()

		readyFrame, _ := ipc.Encode(ipc.TagWorkerReady, ipc.WorkerReady{WorkerID: "w1"})
		if err := conn.Send(readyFrame); err != nil {
			fakeWorkerDone <- err
			return
		}
		regFrame, _ := ipc.Encode(ipc.TagRouteRegistry, ipc.RouteRegistry{})
		if err := conn.Send(regFrame); err != nil {
			fakeWorkerDone <- err
			return
		}

		assignmentFrame, err := conn.Recv()
		if err != nil {
			fakeWorkerDone <- err
			return
		}
		var assignment ipc.TaskAssignment
		if err := ipc.Decode(assignmentFrame, &assignment); err != nil {
			fakeWorkerDone <- err
			return
		}

		resultFrame, _ := ipc.Encode(ipc.TagTaskResult, ipc.TaskResult{
			TaskID: assignment.TaskID, OK: true, Result: map[string]any{"echo": assignment.Args["n"]},
		})
		fakeWorkerDone <- conn.Send(resultFrame)
	}()

	require.Eventually(t, func() bool {
		return h.snapshot().State == types.WorkerIdle
	}, time.Second, 10*time.Millisecond, "worker should complete handshake and go idle")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	task := types.Task{
		ID:        "t1",
		Route:     types.RouteKey{Method: "POST", Path: "/add"},
		Handler:   "add",
		Args:      map[string]any{"n": 7.0},
		Resources: types.ResourceVector{CPUs: 1, MemoryGB: 1},
	}
	result, err := p.Dispatch(ctx, "w1", task)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, map[string]any{"echo": 7.0}, result.Result)

	select {
	case err := <-fakeWorkerDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("fake worker goroutine never finished")
	}
}

func TestDispatchErrorsOnUnknownWorker(t *testing.T) {
	p := newTestPool(t, Config{})
	_, err := p.Dispatch(context.Background(), "nonexistent", types.Task{ID: "t1"})
	assert.Error(t, err)
}

func TestSnapshotExcludesNothingButReflectsState(t *testing.T) {
	p := newTestPool(t, Config{})
	h := newWorkerHandle("w1")
	h.capability = types.ResourceVector{CPUs: 1}
	p.mu.Lock()
	p.workers["w1"] = h
	p.mu.Unlock()

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "w1", snap[0].ID)
}
