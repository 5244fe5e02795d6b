package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/log"
	"github.com/nithinkrishnamurthi/neutrino/pkg/routetable"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/rs/zerolog"
)

// Config configures the gateway's discovery and polling behavior.
type Config struct {
	DiscoveryRefreshInterval time.Duration
	CapacityPollInterval     time.Duration
	PollTimeout              time.Duration
}

// DefaultConfig returns the gateway's default polling cadence: discovery
// refreshed every 30s, capacity polled every 2s, matching the
// configuration table defaults.
func DefaultConfig() Config {
	return Config{
		DiscoveryRefreshInterval: 30 * time.Second,
		CapacityPollInterval:     2 * time.Second,
		PollTimeout:              1500 * time.Millisecond,
	}
}

// Gateway selects a backend node for each incoming request and proxies
// it there.
type Gateway struct {
	cfg        Config
	discoverer BackendDiscoverer
	table      *routetable.Table

	// pollClient bounds /capacity polling to PollTimeout. forwardClient
	// carries no client-side timeout of its own: proxied requests run as
	// long as the inbound request's context allows (the task deadline),
	// not the short polling timeout.
	pollClient    *http.Client
	forwardClient *http.Client
	logger        zerolog.Logger

	mu       sync.RWMutex
	backends map[string]*backend

	stopCh chan struct{}
}

// New creates a gateway bound to table's requirement vectors and
// discoverer's backend list.
func New(cfg Config, table *routetable.Table, discoverer BackendDiscoverer) *Gateway {
	return &Gateway{
		cfg:           cfg,
		discoverer:    discoverer,
		table:         table,
		pollClient:    &http.Client{Timeout: cfg.PollTimeout},
		forwardClient: &http.Client{},
		logger:        log.WithComponent("gateway"),
		backends:      make(map[string]*backend),
		stopCh:        make(chan struct{}),
	}
}

// Start performs an initial discovery pass and begins the discovery
// refresh and capacity poll loops.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.refreshBackends(ctx); err != nil {
		return fmt.Errorf("gateway: initial discovery: %w", err)
	}

	go g.discoveryLoop(ctx)
	go g.pollLoop(ctx)
	return nil
}

// Stop halts the background loops.
func (g *Gateway) Stop() {
	close(g.stopCh)
}

func (g *Gateway) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.DiscoveryRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := g.refreshBackends(ctx); err != nil {
				g.logger.Error().Err(err).Msg("backend discovery refresh failed")
			}
		case <-g.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) refreshBackends(ctx context.Context) error {
	endpoints, err := g.discoverer.Discover(ctx)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		seen[ep] = true
		if _, ok := g.backends[ep]; !ok {
			g.backends[ep] = newBackend(ep)
		}
	}
	for ep := range g.backends {
		if !seen[ep] {
			delete(g.backends, ep)
		}
	}
	return nil
}

func (g *Gateway) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.CapacityPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.pollAll(ctx)
		case <-g.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) pollAll(ctx context.Context) {
	g.mu.RLock()
	backends := make([]*backend, 0, len(g.backends))
	for _, b := range g.backends {
		backends = append(backends, b)
	}
	g.mu.RUnlock()

	for _, b := range backends {
		go g.pollOne(ctx, b)
	}
}

func (g *Gateway) pollOne(ctx context.Context, b *backend) {
	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.PollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, b.endpoint+"/capacity", nil)
	if err != nil {
		b.recordFailure()
		return
	}

	resp, err := g.pollClient.Do(req)
	if err != nil {
		b.recordFailure()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b.recordFailure()
		return
	}

	var snap types.CapacitySnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		b.recordFailure()
		return
	}

	b.recordSuccess(snap)
}

// rankedCandidates returns every healthy backend whose available
// resources dominate req, ordered best-first by utilization score and
// tie-broken by endpoint identity. forward() walks this list in order,
// retrying the next candidate on connection failure.
func (g *Gateway) rankedCandidates(req types.ResourceVector) []*backend {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var candidates []*backend
	for _, b := range g.backends {
		if !b.isHealthy() {
			continue
		}
		if !b.available().Dominates(req) {
			continue
		}
		candidates = append(candidates, b)
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].utilizationScore(req), candidates[j].utilizationScore(req)
		if si != sj {
			return si < sj
		}
		return candidates[i].id < candidates[j].id
	})

	return candidates
}

// selectBackend picks the healthy backend with the lowest utilization
// score among those whose available resources dominate req, tie-broken
// by endpoint identity.
func (g *Gateway) selectBackend(req types.ResourceVector) (*backend, error) {
	candidates := g.rankedCandidates(req)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("gateway: no healthy backend satisfies requirement")
	}
	return candidates[0], nil
}

// rankedDefaultCandidates returns every healthy backend, ordered by
// endpoint identity, for requests that match no route table entry.
func (g *Gateway) rankedDefaultCandidates() []*backend {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, b := range g.backends {
		if b.isHealthy() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	candidates := make([]*backend, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, g.backends[id])
	}
	return candidates
}

// defaultBackend picks any healthy backend for requests that match no
// route table entry, e.g. health checks proxied through the gateway.
func (g *Gateway) defaultBackend() (*backend, error) {
	candidates := g.rankedDefaultCandidates()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("gateway: no healthy backend available")
	}
	return candidates[0], nil
}
