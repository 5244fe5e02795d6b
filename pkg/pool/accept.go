package pool

import (
	"errors"
	"net"

	"github.com/nithinkrishnamurthi/neutrino/pkg/events"
	"github.com/nithinkrishnamurthi/neutrino/pkg/ipc"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
)

// acceptLoop accepts one connection per spawned worker process. A worker
// is expected to send WorkerReady immediately followed by RouteRegistry;
// anything else on a fresh connection is a protocol violation and the
// connection is dropped.
func (p *Pool) acceptLoop() {
	defer p.wg.Done()

	for {
		nc, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			p.logger.Error().Err(err).Msg("accept failed")
			continue
		}

		go p.handshake(ipc.NewConn(nc))
	}
}

func (p *Pool) handshake(conn *ipc.Conn) {
	frame, err := conn.Recv()
	if err != nil || frame.Tag != ipc.TagWorkerReady {
		p.logger.Error().Err(err).Msg("expected worker_ready on new connection")
		_ = conn.Close()
		return
	}
	var ready ipc.WorkerReady
	if err := ipc.Decode(frame, &ready); err != nil {
		p.logger.Error().Err(err).Msg("malformed worker_ready")
		_ = conn.Close()
		return
	}

	p.mu.RLock()
	h, ok := p.workers[ready.WorkerID]
	p.mu.RUnlock()
	if !ok {
		p.logger.Error().Str("worker_id", ready.WorkerID).Msg("worker_ready for unknown worker id")
		_ = conn.Close()
		return
	}

	regFrame, err := conn.Recv()
	if err != nil || regFrame.Tag != ipc.TagRouteRegistry {
		p.logger.Error().Err(err).Str("worker_id", ready.WorkerID).Msg("expected route_registry after worker_ready")
		_ = conn.Close()
		return
	}

	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()

	from := h.setState(types.WorkerIdle)
	p.logger.Info().Str("worker_id", ready.WorkerID).Msg("worker ready")
	p.broker.Publish(&events.Event{Type: events.EventWorkerReady, WorkerID: ready.WorkerID, Message: "worker transitioned " + string(from) + " -> idle"})

	p.wg.Add(1)
	go p.readLoop(h)
}

// readLoop drains one worker's connection for heartbeats and task
// results until the connection closes.
func (p *Pool) readLoop(h *workerHandle) {
	defer p.wg.Done()

	for {
		frame, err := h.conn.Recv()
		if err != nil {
			return
		}

		switch frame.Tag {
		case ipc.TagHeartbeat:
			var hb ipc.Heartbeat
			if err := ipc.Decode(frame, &hb); err != nil {
				continue
			}
			h.recordHeartbeat(hb)

		case ipc.TagTaskResult:
			var result ipc.TaskResult
			if err := ipc.Decode(frame, &result); err != nil {
				continue
			}
			h.deliver(result)
			if result.OK {
				p.broker.Publish(&events.Event{Type: events.EventTaskCompleted, TaskID: result.TaskID, WorkerID: h.id})
			} else {
				p.broker.Publish(&events.Event{Type: events.EventTaskFailed, TaskID: result.TaskID, WorkerID: h.id, Message: result.ErrorDetail})
			}

		default:
			p.logger.Warn().Str("tag", frame.Tag.String()).Str("worker_id", h.id).Msg("unexpected frame from worker")
		}
	}
}
