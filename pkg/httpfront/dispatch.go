package httpfront

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/nithinkrishnamurthi/neutrino/pkg/events"
	"github.com/nithinkrishnamurthi/neutrino/pkg/metrics"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
)

// noCapacityRetryAfterSeconds is the Retry-After value advertised on a
// 503; short enough that a client backing off politely still meets the
// node's sub-second dispatch target once capacity frees up.
const noCapacityRetryAfterSeconds = "1"

// clientDisconnectedStatus is the metrics-only status recorded when the
// client's context is canceled before a worker replies. Nothing is
// written to the response, since there is no longer anyone to write it
// to; this follows the same non-standard convention proxies use for a
// client that went away mid-request.
const clientDisconnectedStatus = 499

// taskHandler returns an http.HandlerFunc that turns a matched request
// into a Task, schedules it, dispatches it to a worker, and maps the
// outcome to an HTTP response.
func (s *Server) taskHandler(entry types.RouteEntry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		defer timer.ObserveDurationVec(metrics.HTTPRequestDuration, r.Method, entry.PathPattern)

		args, status, err := s.decodeArgs(w, r, entry)
		if err != nil {
			writeError(w, status, types.ErrorKindRouting, err.Error())
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, entry.PathPattern, strconv.Itoa(status)).Inc()
			return
		}

		taskDeadline := s.cfg.DefaultDeadline
		if entry.Deadline > 0 {
			taskDeadline = entry.Deadline
		}
		deadline := time.Now().Add(taskDeadline)
		task := types.Task{
			ID:        uuid.New().String(),
			Route:     types.RouteKey{Method: entry.Method, Path: entry.PathPattern},
			Handler:   entry.Handler,
			Args:      args,
			Resources: entry.Resources,
			CreatedAt: time.Now(),
			Deadline:  deadline,
		}
		s.broker.Publish(&events.Event{Type: events.EventTaskCreated, TaskID: task.ID})

		status = s.dispatch(r.Context(), w, task)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, entry.PathPattern, strconv.Itoa(status)).Inc()
	}
}

func (s *Server) decodeArgs(w http.ResponseWriter, r *http.Request, entry types.RouteEntry) (map[string]any, int, error) {
	args := make(map[string]any)

	for k, v := range mux.Vars(r) {
		args[k] = v
	}
	for k, values := range r.URL.Query() {
		if len(values) == 1 {
			args[k] = values[0]
		} else {
			args[k] = values
		}
	}

	if r.ContentLength == 0 {
		return args, 0, nil
	}

	limited := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, http.StatusRequestEntityTooLarge, errors.New("request body exceeds maximum frame size")
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		return nil, http.StatusRequestEntityTooLarge, errors.New("request body exceeds maximum frame size")
	}
	if len(body) == 0 {
		return args, 0, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, http.StatusBadRequest, errors.New("request body is not valid JSON")
	}
	for k, v := range decoded {
		args[k] = v
	}

	return args, 0, nil
}

// dispatch schedules and runs task, writes the HTTP response, and
// returns the status code written for metrics.
func (s *Server) dispatch(parent context.Context, w http.ResponseWriter, task types.Task) int {
	workers := s.pool.Snapshot()
	workerID, err := s.scheduler.Select(workers, task)
	if err != nil {
		w.Header().Set("Retry-After", noCapacityRetryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, types.ErrorKindCapacity, "no worker has capacity")
		return http.StatusServiceUnavailable
	}

	ctx, cancel := context.WithDeadline(parent, task.Deadline)
	defer cancel()

	result, err := s.pool.Dispatch(ctx, workerID, task)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.broker.Publish(&events.Event{Type: events.EventTaskDeadline, TaskID: task.ID, WorkerID: workerID})
			writeError(w, http.StatusGatewayTimeout, types.ErrorKindDeadline, "task deadline exceeded")
			return http.StatusGatewayTimeout
		}
		if errors.Is(err, context.Canceled) {
			// the client went away before the worker replied. There is no
			// one left to write a response to; a result delivered after
			// this point is simply dropped by the outstanding-task map,
			// not reported as a worker failure.
			return clientDisconnectedStatus
		}
		writeError(w, http.StatusBadGateway, types.ErrorKindWorker, "worker died mid-task")
		return http.StatusBadGateway
	}

	if !result.OK {
		writeError(w, http.StatusInternalServerError, types.ErrorKindHandler, result.ErrorDetail)
		return http.StatusInternalServerError
	}

	if result.ResultBytes != "" {
		raw, err := base64.StdEncoding.DecodeString(result.ResultBytes)
		if err != nil {
			writeError(w, http.StatusInternalServerError, types.ErrorKindHandler, "malformed result bytes")
			return http.StatusInternalServerError
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
		return http.StatusOK
	}

	writeJSON(w, http.StatusOK, result.Result)
	return http.StatusOK
}
