package ipc

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameRoundTrip covers the frame round-trip law: encoding then
// decoding any valid tagged record yields an equal record.
func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		tag  Tag
		rec  any
		out  any
	}{
		{"worker_ready", TagWorkerReady,
			WorkerReady{WorkerID: "w1", PID: 42, Capability: Vector{CPUs: 2, GPUs: 0, MemoryGB: 4}},
			&WorkerReady{}},
		{"route_registry", TagRouteRegistry,
			RouteRegistry{Routes: []RouteDescriptor{{Method: "POST", Path: "/add", Handler: "add"}}},
			&RouteRegistry{}},
		{"heartbeat", TagHeartbeat,
			Heartbeat{WorkerID: "w1", OutstandingCount: 1, ResidentMemoryMB: 128.5},
			&Heartbeat{}},
		{"task_assignment", TagTaskAssignment,
			TaskAssignment{TaskID: "t1", Method: "GET", Path: "/users/{id}", Handler: "getUser", Args: map[string]any{"id": "7"}, DeadlineUnixNano: 123},
			&TaskAssignment{}},
		{"task_result", TagTaskResult,
			TaskResult{TaskID: "t1", OK: true, Result: map[string]any{"value": 9.0}},
			&TaskResult{}},
		{"shutdown", TagShutdown,
			Shutdown{Graceful: true, Deadline: 5 * time.Second},
			&Shutdown{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			frame, err := Encode(c.tag, c.rec)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, frame))

			decodedFrame, err := ReadFrame(bufio.NewReader(&buf))
			require.NoError(t, err)
			assert.Equal(t, c.tag, decodedFrame.Tag)

			require.NoError(t, Decode(decodedFrame, c.out))
			assertDeepEqual(t, c.rec, c.out)
		})
	}
}

func assertDeepEqual(t *testing.T, want, gotPtr any) {
	t.Helper()
	switch w := want.(type) {
	case WorkerReady:
		assert.Equal(t, w, *gotPtr.(*WorkerReady))
	case RouteRegistry:
		assert.Equal(t, w, *gotPtr.(*RouteRegistry))
	case Heartbeat:
		assert.Equal(t, w, *gotPtr.(*Heartbeat))
	case TaskAssignment:
		assert.Equal(t, w, *gotPtr.(*TaskAssignment))
	case TaskResult:
		assert.Equal(t, w, *gotPtr.(*TaskResult))
	case Shutdown:
		assert.Equal(t, w, *gotPtr.(*Shutdown))
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	_, err := ReadFrame(bufio.NewReader(&buf))
	assert.Error(t, err)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 4)
	header[0] = 0xFF
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	buf.Write(header)
	_, err := ReadFrame(bufio.NewReader(&buf))
	assert.Error(t, err)
}

func TestWriteFrameRejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{Tag: TagHeartbeat, Body: make([]byte, MaxFrameSize+1)})
	assert.Error(t, err)
}

func TestTagStringUnknownTag(t *testing.T) {
	assert.Contains(t, Tag(99).String(), "99")
}

func TestTaskAssignmentDeadlineZeroWhenUnset(t *testing.T) {
	a := TaskAssignment{}
	assert.True(t, a.Deadline().IsZero())
}

func TestTaskAssignmentDeadlineReconstructsAbsoluteTime(t *testing.T) {
	want := time.Now().Add(30 * time.Second)
	a := TaskAssignment{DeadlineUnixNano: want.UnixNano()}
	assert.WithinDuration(t, want, a.Deadline(), time.Millisecond)
}
