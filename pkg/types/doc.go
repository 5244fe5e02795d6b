/*
Package types defines the core data structures shared across neutrino's
node orchestrator: tasks, workers, route table entries, and resource
vectors.

# Architecture

The types package is the foundation of the node's in-memory model. It
defines:

  - Task identity, arguments, and resource requirements
  - Worker identity, state machine, and counters
  - Route table entries (method, path pattern, handler, resources)
  - Resource vectors used for admission and capacity accounting
  - The capacity snapshot schema published at /capacity

# Core Types

Task Dispatch:
  - Task: one HTTP-request-derived unit of work
  - RouteKey: the (method, path template) a task is dispatched against
  - ResourceVector: {CPUs, GPUs, MemoryGB} used both as a requirement and
    as a capability

Worker Lifecycle:
  - WorkerState: Spawning, Ready, Idle, Busy, Draining, Exited
  - WorkerInfo: a read-only snapshot of a worker handle's state, used by
    the capacity reporter and /health without reaching into the pool's
    locks

Routing:
  - RouteEntry: one (method, path pattern, handler, resources) binding
  - CapacitySnapshot: the canonical JSON shape returned by /capacity

# Thread Safety

Types in this package are plain data — they carry no locks of their own.
The packages that own a given type's lifecycle (pool, scheduler,
routetable) hold their own synchronization discipline.
*/
package types
