package gateway

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendDiscoverer resolves the current set of node endpoints to
// consider. Discover is called once at startup and again on every
// discovery refresh tick.
type BackendDiscoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// StaticDiscoverer returns a fixed list of endpoints loaded once from a
// YAML file, the "static" discovery-mode named in the configuration
// table.
type StaticDiscoverer struct {
	endpoints []string
}

// NewStaticDiscoverer loads a YAML list of backend endpoint URLs, e.g.:
//
//	- http://node-a:8080
//	- http://node-b:8080
func NewStaticDiscoverer(path string) (*StaticDiscoverer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gateway: read static endpoints %s: %w", path, err)
	}

	var endpoints []string
	if err := yaml.Unmarshal(data, &endpoints); err != nil {
		return nil, fmt.Errorf("gateway: parse static endpoints: %w", err)
	}
	return &StaticDiscoverer{endpoints: endpoints}, nil
}

// Discover returns the configured endpoint list unchanged.
func (d *StaticDiscoverer) Discover(ctx context.Context) ([]string, error) {
	return d.endpoints, nil
}

// PlatformAPIDiscoverer is the label-selector-driven discovery seam.
// Wiring it up to a real orchestration-platform API is out of scope for
// this module; it exists so BackendDiscoverer has a documented second
// implementation point rather than only ever being satisfied by static
// configuration.
type PlatformAPIDiscoverer struct {
	LabelSelector string
}

// Discover always returns an error: no platform API client is wired. A
// deployment that needs dynamic discovery supplies its own
// BackendDiscoverer implementation instead of this stub.
func (d *PlatformAPIDiscoverer) Discover(ctx context.Context) ([]string, error) {
	return nil, fmt.Errorf("gateway: platform-api discovery is not implemented; supply a custom BackendDiscoverer")
}
