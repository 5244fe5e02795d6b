package ipc

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkerReady is sent once by a worker immediately after it finishes
// loading its app entry, before the orchestrator assigns it any task.
type WorkerReady struct {
	WorkerID   string  `json:"worker_id"`
	PID        int     `json:"pid"`
	Capability Vector  `json:"capability"`
}

// Vector mirrors types.ResourceVector without importing pkg/types, keeping
// the wire protocol package independent of the core data model.
type Vector struct {
	CPUs     float64 `json:"cpus"`
	GPUs     float64 `json:"gpus"`
	MemoryGB float64 `json:"memory_gb"`
}

// RouteRegistry is sent once by a worker after WorkerReady, listing every
// handler registered in the app registry. pkg/worker fills in only
// Handler; Method and Path are left empty.
type RouteRegistry struct {
	Routes []RouteDescriptor `json:"routes"`
}

// RouteDescriptor names one handler a worker is prepared to run.
type RouteDescriptor struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
}

// Heartbeat is sent periodically by a worker to report liveness and
// current resource usage.
type Heartbeat struct {
	WorkerID         string  `json:"worker_id"`
	OutstandingCount int     `json:"outstanding_count"`
	ResidentMemoryMB float64 `json:"resident_memory_mb"`
}

// TaskAssignment is sent by the orchestrator to hand a worker one unit of
// work.
type TaskAssignment struct {
	TaskID    string         `json:"task_id"`
	Method    string         `json:"method"`
	Path      string         `json:"path"`
	Handler   string         `json:"handler"`
	Args      map[string]any `json:"args"`
	DeadlineUnixNano int64   `json:"deadline_unix_nano,omitempty"`
}

// Deadline reconstructs the assignment's absolute deadline, or the zero
// time if none was set.
func (a TaskAssignment) Deadline() time.Time {
	if a.DeadlineUnixNano == 0 {
		return time.Time{}
	}
	return time.Unix(0, a.DeadlineUnixNano)
}

// TaskResult is sent by a worker after it finishes running a task,
// successfully or not.
type TaskResult struct {
	TaskID      string         `json:"task_id"`
	OK          bool           `json:"ok"`
	Result      map[string]any `json:"result,omitempty"`
	ResultBytes string         `json:"result_bytes,omitempty"` // base64, set only for raw-byte handler returns
	ErrorKind   string         `json:"error_kind,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// Shutdown is sent by the orchestrator to ask a worker to drain and exit.
type Shutdown struct {
	Graceful bool          `json:"graceful"`
	Deadline time.Duration `json:"deadline"`
}

// Encode marshals v as the JSON body for the given tag.
func Encode(tag Tag, v any) (Frame, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("ipc: encode %s: %w", tag, err)
	}
	return Frame{Tag: tag, Body: body}, nil
}

// Decode unmarshals a frame's body into v. The caller must already know
// the expected type from f.Tag.
func Decode(f Frame, v any) error {
	if err := json.Unmarshal(f.Body, v); err != nil {
		return fmt.Errorf("ipc: decode %s: %w", f.Tag, err)
	}
	return nil
}
