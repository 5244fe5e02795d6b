// neutrino-worker is the thin entrypoint a pool spawns per worker
// process. It is invoked with the launch contract
// <worker-entry> <socket-path> <worker-id> <app-entry>
// and never parsed as a general-purpose CLI: its only job is to dial the
// orchestrator and run the user program's registered handlers.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/log"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/nithinkrishnamurthi/neutrino/pkg/worker"

	_ "github.com/nithinkrishnamurthi/neutrino/internal/exampleapp"
)

func main() {
	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: neutrino-worker <socket-path> <worker-id> <app-entry>")
		os.Exit(1)
	}

	cfg := worker.Config{
		SocketPath:        os.Args[1],
		WorkerID:          os.Args[2],
		AppEntry:          os.Args[3],
		Capability:        types.DefaultResourceVector(),
		HeartbeatInterval: heartbeatIntervalFromEnv(),
	}

	if err := worker.Run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "neutrino-worker: %v\n", err)
		os.Exit(1)
	}
}

// heartbeatIntervalFromEnv reads the interval the spawning pool passed
// through the environment, since the worker launch contract's positional
// arguments are fixed. Zero (unset or malformed) falls back to
// worker.DefaultHeartbeatInterval.
func heartbeatIntervalFromEnv() time.Duration {
	raw := os.Getenv("NEUTRINO_WORKER_HEARTBEAT_INTERVAL")
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
