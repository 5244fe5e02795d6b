package pool

import (
	"sync/atomic"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/events"
	"github.com/nithinkrishnamurthi/neutrino/pkg/metrics"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
)

func (p *Pool) respawnWithBackoff(id string) {
	attempt := atomic.AddInt32(&p.respawnAttempts, 1)
	backoff := p.cfg.RespawnBackoffMin << uint(attempt-1)
	if backoff > p.cfg.RespawnBackoffMax || backoff <= 0 {
		backoff = p.cfg.RespawnBackoffMax
	}

	p.logger.Warn().Dur("backoff", backoff).Int32("attempt", attempt).Str("worker_id", id).Msg("respawning worker after backoff")
	metrics.PoolRespawns.Inc()

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-p.stopCh:
		return
	}

	if err := p.spawnWorker(id); err != nil {
		p.logger.Error().Err(err).Msg("respawn failed")
		return
	}
	atomic.StoreInt32(&p.respawnAttempts, 0)
}

// healthMonitorLoop marks workers unhealthy after consecutive missed
// heartbeats and kills them; waitForExit handles the resulting respawn.
func (p *Pool) healthMonitorLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.checkHeartbeats()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) checkHeartbeats() {
	p.mu.RLock()
	handles := make([]*workerHandle, 0, len(p.workers))
	for _, h := range p.workers {
		handles = append(handles, h)
	}
	p.mu.RUnlock()

	for _, h := range handles {
		h.mu.Lock()
		state := h.state
		if state == types.WorkerSpawning || state == types.WorkerDraining {
			h.mu.Unlock()
			continue
		}
		if h.lastHeartbeat.IsZero() {
			h.lastHeartbeat = time.Now()
		}
		missedSince := time.Since(h.lastHeartbeat)
		h.mu.Unlock()

		if missedSince < p.heartbeatInterval() {
			continue
		}

		h.mu.Lock()
		h.missedHeartbeats++
		missed := h.missedHeartbeats
		h.lastError = "missed heartbeat"
		h.mu.Unlock()

		if missed >= p.cfg.MissedHeartbeatLimit {
			p.logger.Warn().Str("worker_id", h.id).Int("missed", missed).Msg("worker exceeded missed heartbeat limit, killing")
			p.broker.Publish(&events.Event{Type: events.EventWorkerExited, WorkerID: h.id, Message: "killed after missed heartbeats"})
			if h.cmd != nil && h.cmd.Process != nil {
				_ = h.cmd.Process.Kill()
			}
		}
	}
}

// recyclerLoop retires workers that have exceeded a task, memory, or age
// threshold, replacing each one before it drains so capacity never dips
// below the configured worker count during routine recycling.
func (p *Pool) recyclerLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(recycleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.checkRecycle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) checkRecycle() {
	p.mu.RLock()
	handles := make([]*workerHandle, 0, len(p.workers))
	for _, h := range p.workers {
		handles = append(handles, h)
	}
	p.mu.RUnlock()

	for _, h := range handles {
		info := h.snapshot()
		if info.State != types.WorkerIdle && info.State != types.WorkerReady {
			continue
		}
		if !p.shouldRecycle(info) {
			continue
		}

		p.logger.Info().Str("worker_id", h.id).Msg("recycling worker")
		if err := p.spawnWorker(""); err != nil {
			p.logger.Error().Err(err).Msg("failed to spawn replacement before recycling")
			continue
		}
		// The replacement is already up, so this worker's own exit must
		// not trigger a second respawn in waitForExit.
		h.markPlannedExit()
		p.broker.Publish(&events.Event{Type: events.EventWorkerRecycled, WorkerID: h.id})
		p.drainWorker(h, recycleDrainTimeout)
	}
}

func (p *Pool) shouldRecycle(info types.WorkerInfo) bool {
	if p.cfg.RecycleAfterTasks > 0 && info.TasksCompleted >= p.cfg.RecycleAfterTasks {
		return true
	}
	if p.cfg.RecycleAfterRSSMB > 0 && info.ResidentMemoryMB >= p.cfg.RecycleAfterRSSMB {
		return true
	}
	if p.cfg.RecycleAfterAge > 0 && time.Since(info.SpawnedAt) >= p.cfg.RecycleAfterAge {
		return true
	}
	return false
}

const (
	recycleCheckInterval = 30 * time.Second
	recycleDrainTimeout  = 30 * time.Second
)
