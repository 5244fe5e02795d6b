/*
Package scheduler picks which worker in a pool runs a given task.

Selection is hybrid push/pull: it prefers a worker sitting fully idle
(push), and only falls back to piling a second task onto an already-busy
worker (pull) when every idle worker's declared capability falls short of
the task's resource requirement and at least one busy worker still has
room under its per-worker concurrency ceiling. A task that fits nowhere
fails fast with ErrNoCapacity rather than queuing, so the caller can
return 503 immediately instead of blocking the request.

Tie-breaks, in order: fewest outstanding tasks, then the worker that went
longest without a new assignment, then worker ID for a deterministic
result in tests.
*/
package scheduler
