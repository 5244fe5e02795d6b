/*
Package pool is the orchestrator side of the worker lifecycle: it spawns a
fixed-size set of pre-forked worker processes, accepts their unix socket
connections, tracks their state machine (spawning -> ready -> idle <-> busy
-> draining -> exited), dispatches task assignments, and respawns or
recycles workers as needed.

	┌────────────────────────── Pool ───────────────────────────┐
	│                                                              │
	│  spawn(N) ──▶ os/exec per worker ──▶ accept() on unix socket │
	│                                                              │
	│  ┌────────────┐   TaskAssignment   ┌────────────┐           │
	│  │ dispatch   │ ─────────────────▶ │  worker N  │           │
	│  │            │ ◀───────────────── │            │           │
	│  └────────────┘    TaskResult      └────────────┘           │
	│                                                              │
	│  health monitor: missed heartbeats ──▶ kill + respawn        │
	│  recycler: task/rss/age thresholds ──▶ drain + respawn       │
	└──────────────────────────────────────────────────────────────┘

A worker that exits unexpectedly is respawned with exponential backoff,
capped, so a worker that crash-loops on startup does not spin the
orchestrator.
*/
package pool
