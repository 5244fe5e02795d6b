/*
Package log provides structured logging for neutrino using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support
filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("scheduler")               │          │
	│  │  - WithNodeID("node-1")                     │          │
	│  │  - WithWorkerID("worker-3")                 │          │
	│  │  - WithTaskID("task-abc")                   │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Str("task_id", task.ID).Msg("assigned task")

	workerLog := log.WithComponent("pool").
		With().Str("worker_id", w.ID).Logger()
	workerLog.Warn().Msg("missed heartbeat")

# Log Output Examples

JSON (production):

	{"level":"info","component":"scheduler","task_id":"task-123","time":"...","message":"assigned task"}

Console (development):

	2024-05-01T10:30:01Z INF assigned task component=scheduler task_id=task-123

# Conventions

  - Never log task argument bodies or handler results — they may carry
    caller-supplied data that doesn't belong in aggregated logs.
  - Use .Err(err) for error values rather than string-formatting them.
  - Prefer a component logger over the bare global Logger so every line
    is attributable to pool, scheduler, httpfront, or gateway.
*/
package log
