package gateway

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/metrics"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
)

// ServeHTTP matches the request against the gateway's route table to
// determine its resource requirement, ranks candidate backends, and
// forwards the request to each in turn until one succeeds. Requests
// matching no route entry are ranked against any healthy backend.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	entry, _, matched := g.table.Match(r.Method, r.URL.Path)

	var req types.ResourceVector
	if matched {
		req = entry.Resources
	}

	candidates := g.rankedCandidates(req)
	if len(candidates) == 0 && !matched {
		candidates = g.rankedDefaultCandidates()
	}
	if len(candidates) == 0 {
		http.Error(w, `{"error_kind":"capacity","detail":"no backend available"}`, http.StatusServiceUnavailable)
		g.logEvent(r, "", req, http.StatusServiceUnavailable, time.Since(start))
		return
	}

	endpoint, status := g.forwardWithRetry(w, r, candidates)
	g.logEvent(r, endpoint, req, status, time.Since(start))
}

// forwardWithRetry tries each candidate in order, marking a candidate
// unhealthy and advancing to the next on connection failure. The request
// body is buffered up front since a single io.Reader can't be replayed
// across attempts. Nothing is written to w until a candidate round-trips
// successfully, so a failed first attempt never corrupts the response.
func (g *Gateway) forwardWithRetry(w http.ResponseWriter, r *http.Request, candidates []*backend) (endpoint string, status int) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, `{"error_kind":"routing","detail":"failed to read request body"}`, http.StatusBadGateway)
			return "", http.StatusBadGateway
		}
		r.Body.Close()
	}

	for _, b := range candidates {
		resp, err := g.roundTrip(r, b, body)
		if err != nil {
			b.recordFailure()
			b.mu.Lock()
			b.healthy = false
			b.mu.Unlock()
			g.logger.Warn().Str("endpoint", b.endpoint).Err(err).Msg("backend unreachable, trying next candidate")
			continue
		}

		for k, vv := range resp.Header {
			for _, v := range vv {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
		resp.Body.Close()
		return b.endpoint, resp.StatusCode
	}

	http.Error(w, `{"error_kind":"worker","detail":"all candidate backends unreachable"}`, http.StatusServiceUnavailable)
	return "", http.StatusServiceUnavailable
}

func (g *Gateway) roundTrip(r *http.Request, b *backend, body []byte) (*http.Response, error) {
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, b.endpoint+r.URL.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	outReq.Header = r.Header.Clone()
	outReq.ContentLength = int64(len(body))

	return g.forwardClient.Do(outReq)
}

func (g *Gateway) logEvent(r *http.Request, endpoint string, req types.ResourceVector, status int, elapsed time.Duration) {
	outcome := "ok"
	if status >= 400 {
		outcome = "error"
	}
	metrics.GatewayProxiedTotal.WithLabelValues(endpoint, outcome).Inc()
	metrics.GatewayProxyDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	g.logger.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("endpoint", endpoint).
		Float64("req_cpus", req.CPUs).
		Float64("req_gpus", req.GPUs).
		Float64("req_memory_gb", req.MemoryGB).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("proxied request")
}
