// Package capacity computes the pool-capacity snapshot published at
// GET /capacity: available resources sum over Idle/Ready workers, total
// sums over every non-Exited worker.
package capacity

import "github.com/nithinkrishnamurthi/neutrino/pkg/types"

// Snapshot derives a CapacitySnapshot from a point-in-time worker
// listing. It is pure and allocation-light enough to call on every
// request rather than cache, matching the "recomputed on demand"
// contract clients poll against.
func Snapshot(workers []types.WorkerInfo) types.CapacitySnapshot {
	var available, total types.ResourceVector
	var idleCount, totalCount int

	for _, w := range workers {
		if w.State == types.WorkerExited {
			continue
		}

		total = total.Add(w.Capability)
		totalCount++

		if w.State == types.WorkerIdle || w.State == types.WorkerReady {
			available = available.Add(w.Capability)
			idleCount++
		}
	}

	return types.CapacitySnapshot{
		Available: available,
		Total:     total,
		Workers: types.WorkerCounts{
			Total: totalCount,
			Idle:  idleCount,
		},
	}
}
