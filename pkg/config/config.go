/*
Package config loads neutrino's configuration table through spf13/viper,
with NEUTRINO_-prefixed environment variable overrides and an optional
YAML config file. The route-spec document is the one setting watched for
hot-reload: fsnotify triggers a rebuild of an immutable route table that
is swapped in atomically, without restarting the process.
*/
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Node holds the configuration for the per-node orchestrator (cmd/neutrino).
type Node struct {
	WorkerCount     int           `mapstructure:"worker-count"`
	AppEntry        string        `mapstructure:"app-entry"`
	RouteSpecPath   string        `mapstructure:"route-spec-path"`
	HTTPBind        string        `mapstructure:"http-bind"`
	SocketDir       string        `mapstructure:"socket-dir"`
	WorkerBinary    string        `mapstructure:"worker-binary"`

	MaxRequestsPerWorker int           `mapstructure:"max-requests-per-worker"`
	MaxRSSPerWorkerMB    float64       `mapstructure:"max-rss-per-worker"`
	MaxWorkerAge         time.Duration `mapstructure:"max-worker-age"`

	TaskDeadline                time.Duration `mapstructure:"task-deadline"`
	HeartbeatInterval           time.Duration `mapstructure:"heartbeat-interval"`
	MissedHeartbeatsBeforeDeath int           `mapstructure:"missed-heartbeats-before-death"`

	LogLevel    string `mapstructure:"log-level"`
	LogJSON     bool   `mapstructure:"log-json"`
	MetricsBind string `mapstructure:"metrics-bind"`
}

// Gateway holds the configuration for the node-selector binary
// (cmd/neutrino-gateway).
type Gateway struct {
	RouteSpecPath string `mapstructure:"route-spec-path"`
	HTTPBind      string `mapstructure:"http-bind"`

	DiscoveryMode        string        `mapstructure:"discovery-mode"` // "static" or "platform-api"
	BackendEndpointsPath string        `mapstructure:"backend-endpoints"`
	PlatformSelector     string        `mapstructure:"selector"`
	CapacityPollInterval time.Duration `mapstructure:"capacity-poll-interval"`

	LogLevel    string `mapstructure:"log-level"`
	LogJSON     bool   `mapstructure:"log-json"`
	MetricsBind string `mapstructure:"metrics-bind"`
}

// DefaultNode returns the node configuration defaults.
func DefaultNode() Node {
	return Node{
		WorkerCount:                 4,
		AppEntry:                    "app:handlers",
		RouteSpecPath:               "routes.yaml",
		HTTPBind:                    ":8080",
		SocketDir:                   "/tmp/neutrino",
		WorkerBinary:                "neutrino-worker",
		MaxRequestsPerWorker:        0,
		MaxRSSPerWorkerMB:           0,
		MaxWorkerAge:                0,
		TaskDeadline:                30 * time.Second,
		HeartbeatInterval:           5 * time.Second,
		MissedHeartbeatsBeforeDeath: 3,
		LogLevel:                    "info",
		LogJSON:                     true,
		MetricsBind:                 ":9090",
	}
}

// DefaultGateway returns the gateway configuration defaults.
func DefaultGateway() Gateway {
	return Gateway{
		RouteSpecPath:        "routes.yaml",
		HTTPBind:             ":8081",
		DiscoveryMode:        "static",
		BackendEndpointsPath: "backends.yaml",
		CapacityPollInterval: 2 * time.Second,
		LogLevel:             "info",
		LogJSON:              true,
		MetricsBind:          ":9091",
	}
}

// NodeManager loads Node configuration and hot-reloads the route-spec
// path setting; other fields require a restart to take effect.
type NodeManager struct {
	v  *viper.Viper
	mu sync.RWMutex
	cfg *Node
	onRouteSpecChange []func(path string)
}

// NewNodeManager loads configuration from cfgFile (if non-empty), viper's
// default search paths otherwise, and NEUTRINO_-prefixed environment
// overrides.
func NewNodeManager(cfgFile string) (*NodeManager, error) {
	v := viper.New()
	setNodeDefaults(v, DefaultNode())
	v.SetEnvPrefix("NEUTRINO")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("neutrino")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/neutrino")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	nm := &NodeManager{v: v}
	cfg, err := nm.load()
	if err != nil {
		return nil, err
	}
	nm.cfg = cfg
	return nm, nil
}

func setNodeDefaults(v *viper.Viper, d Node) {
	v.SetDefault("worker-count", d.WorkerCount)
	v.SetDefault("app-entry", d.AppEntry)
	v.SetDefault("route-spec-path", d.RouteSpecPath)
	v.SetDefault("http-bind", d.HTTPBind)
	v.SetDefault("socket-dir", d.SocketDir)
	v.SetDefault("worker-binary", d.WorkerBinary)
	v.SetDefault("max-requests-per-worker", d.MaxRequestsPerWorker)
	v.SetDefault("max-rss-per-worker", d.MaxRSSPerWorkerMB)
	v.SetDefault("max-worker-age", d.MaxWorkerAge)
	v.SetDefault("task-deadline", d.TaskDeadline)
	v.SetDefault("heartbeat-interval", d.HeartbeatInterval)
	v.SetDefault("missed-heartbeats-before-death", d.MissedHeartbeatsBeforeDeath)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-json", d.LogJSON)
	v.SetDefault("metrics-bind", d.MetricsBind)
}

func (nm *NodeManager) load() (*Node, error) {
	var cfg Node
	if err := nm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration snapshot.
func (nm *NodeManager) Get() *Node {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.cfg
}

// OnRouteSpecChange registers a callback invoked with the new
// route-spec-path whenever the watched config file changes that value.
func (nm *NodeManager) OnRouteSpecChange(fn func(path string)) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.onRouteSpecChange = append(nm.onRouteSpecChange, fn)
}

// WatchRouteSpec begins watching the config file for changes. Only a
// changed route-spec-path triggers callbacks; every other field is
// fixed for the process lifetime.
func (nm *NodeManager) WatchRouteSpec() {
	nm.v.OnConfigChange(func(e fsnotify.Event) {
		newCfg, err := nm.load()
		if err != nil {
			return
		}

		nm.mu.Lock()
		oldPath := nm.cfg.RouteSpecPath
		nm.cfg = newCfg
		callbacks := append([]func(string){}, nm.onRouteSpecChange...)
		nm.mu.Unlock()

		if newCfg.RouteSpecPath == oldPath {
			return
		}
		for _, fn := range callbacks {
			fn(newCfg.RouteSpecPath)
		}
	})
	nm.v.WatchConfig()
}

// LoadGateway loads Gateway configuration the same way NewNodeManager
// loads Node configuration, without hot-reload (the gateway's backend
// list is refreshed by its own discovery loop; its route table is loaded
// once at startup and not reloaded).
func LoadGateway(cfgFile string) (*Gateway, error) {
	v := viper.New()
	setGatewayDefaults(v, DefaultGateway())
	v.SetEnvPrefix("NEUTRINO")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("neutrino-gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/neutrino")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Gateway
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setGatewayDefaults(v *viper.Viper, d Gateway) {
	v.SetDefault("route-spec-path", d.RouteSpecPath)
	v.SetDefault("http-bind", d.HTTPBind)
	v.SetDefault("discovery-mode", d.DiscoveryMode)
	v.SetDefault("backend-endpoints", d.BackendEndpointsPath)
	v.SetDefault("selector", d.PlatformSelector)
	v.SetDefault("capacity-poll-interval", d.CapacityPollInterval)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-json", d.LogJSON)
	v.SetDefault("metrics-bind", d.MetricsBind)
}
