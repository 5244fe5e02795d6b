/*
Package worker is the code that runs inside a spawned worker process. It
dials the orchestrator's unix socket, announces itself and its registered
handlers, then loops reading task assignments and writing results until
told to shut down.

	┌──────────────── worker process ────────────────┐
	│                                                  │
	│   dial socket ──▶ WorkerReady ──▶ RouteRegistry  │
	│                                                  │
	│   ┌──────────────────────────────────────┐      │
	│   │  recv loop: TaskAssignment ──▶ run    │      │
	│   │             handler ──▶ TaskResult    │      │
	│   └──────────────────────────────────────┘      │
	│                                                  │
	│   heartbeat goroutine: every interval, send      │
	│   Heartbeat{outstanding, rss}                    │
	└──────────────────────────────────────────────────┘

Handlers are resolved from pkg/appregistry by name; this package never
knows what a handler does, only how to invoke it and frame the result.
*/
package worker
