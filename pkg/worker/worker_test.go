package worker

import (
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/appregistry"
	"github.com/nithinkrishnamurthi/neutrino/pkg/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHandlerRecoversPanic(t *testing.T) {
	panicking := func(args map[string]any) (any, error) {
		panic("boom")
	}

	_, err := runHandler(panicking, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunHandlerPassesThroughResultAndError(t *testing.T) {
	result, err := runHandler(func(args map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, result)

	_, err = runHandler(func(args map[string]any) (any, error) {
		return nil, errors.New("explicit failure")
	}, nil)
	assert.EqualError(t, err, "explicit failure")
}

func TestToTaskResultShapesByType(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		r := toTaskResult("t1", nil)
		assert.True(t, r.OK)
		assert.Nil(t, r.Result)
		assert.Empty(t, r.ResultBytes)
	})

	t.Run("map passthrough", func(t *testing.T) {
		r := toTaskResult("t1", map[string]any{"result": 5.0})
		assert.Equal(t, map[string]any{"result": 5.0}, r.Result)
	})

	t.Run("bytes base64 encoded", func(t *testing.T) {
		r := toTaskResult("t1", []byte{0x01, 0x02, 0x03})
		assert.Equal(t, "AQID", r.ResultBytes)
		assert.Nil(t, r.Result)
	})

	t.Run("scalar wrapped under value", func(t *testing.T) {
		r := toTaskResult("t1", 42)
		assert.Equal(t, map[string]any{"value": 42}, r.Result)
	})
}

// TestWorkerServeHandshakeAndTaskRoundTrip drives a real worker through
// its handshake and one task dispatch against a fake orchestrator
// listening on a unix socket.
func TestWorkerServeHandshakeAndTaskRoundTrip(t *testing.T) {
	appregistry.Register("worker-test.echo", func(args map[string]any) (any, error) {
		return map[string]any{"got": args["n"]}, nil
	})

	socketPath := filepath.Join(t.TempDir(), "worker-test.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan error, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		conn := ipc.NewConn(nc)
		defer conn.Close()

		readyFrame, err := conn.Recv()
		if err != nil || readyFrame.Tag != ipc.TagWorkerReady {
			serverDone <- errors.New("expected worker_ready")
			return
		}

		regFrame, err := conn.Recv()
		if err != nil || regFrame.Tag != ipc.TagRouteRegistry {
			serverDone <- errors.New("expected route_registry")
			return
		}
		var reg ipc.RouteRegistry
		if err := ipc.Decode(regFrame, &reg); err != nil {
			serverDone <- err
			return
		}

		assignment := ipc.TaskAssignment{TaskID: "t1", Handler: "worker-test.echo", Args: map[string]any{"n": 7.0}}
		frame, err := ipc.Encode(ipc.TagTaskAssignment, assignment)
		if err != nil {
			serverDone <- err
			return
		}
		if err := conn.Send(frame); err != nil {
			serverDone <- err
			return
		}

		resultFrame, err := conn.Recv()
		if err != nil || resultFrame.Tag != ipc.TagTaskResult {
			serverDone <- errors.New("expected task_result")
			return
		}
		var result ipc.TaskResult
		if err := ipc.Decode(resultFrame, &result); err != nil {
			serverDone <- err
			return
		}
		if !result.OK || result.TaskID != "t1" {
			serverDone <- errors.New("unexpected task result")
			return
		}

		shutdownFrame, err := ipc.Encode(ipc.TagShutdown, ipc.Shutdown{Graceful: true})
		if err != nil {
			serverDone <- err
			return
		}
		serverDone <- conn.Send(shutdownFrame)
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- Run(Config{SocketPath: socketPath, WorkerID: "w1", AppEntry: "worker-test"})
	}()

	select {
	case err := <-serverDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fake orchestrator")
	}

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker to exit")
	}
}

func TestRunFailsWhenSocketMissing(t *testing.T) {
	err := Run(Config{SocketPath: filepath.Join(t.TempDir(), "nope.sock"), WorkerID: "w1"})
	assert.Error(t, err)
}
