package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nithinkrishnamurthi/neutrino/pkg/config"
	"github.com/nithinkrishnamurthi/neutrino/pkg/gateway"
	"github.com/nithinkrishnamurthi/neutrino/pkg/log"
	"github.com/nithinkrishnamurthi/neutrino/pkg/metrics"
	"github.com/nithinkrishnamurthi/neutrino/pkg/routetable"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "neutrino-gateway",
	Short:   "neutrino-gateway selects a backend node for each request and proxies it there",
	Version: Version,
	RunE:    runGateway,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("neutrino-gateway version %s (%s)\n", Version, Commit))
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to a neutrino-gateway.yaml config file")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadGateway(cfgFile)
	if err != nil {
		return fmt.Errorf("neutrino-gateway: load config: %w", err)
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("cmd")

	table, err := routetable.Load(cfg.RouteSpecPath)
	if err != nil {
		return fmt.Errorf("neutrino-gateway: load route spec: %w", err)
	}

	discoverer, err := newDiscoverer(*cfg)
	if err != nil {
		return err
	}

	gwCfg := gateway.DefaultConfig()
	gwCfg.CapacityPollInterval = cfg.CapacityPollInterval

	gw := gateway.New(gwCfg, table, discoverer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("neutrino-gateway: start: %w", err)
	}

	go runAdminServer(cfg.MetricsBind)

	server := &http.Server{Addr: cfg.HTTPBind, Handler: gw}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	logger.Info().Str("bind", cfg.HTTPBind).Msg("gateway listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		gw.Stop()
		return server.Close()
	}
}

func newDiscoverer(cfg config.Gateway) (gateway.BackendDiscoverer, error) {
	switch cfg.DiscoveryMode {
	case "", "static":
		return gateway.NewStaticDiscoverer(cfg.BackendEndpointsPath)
	case "platform-api":
		return &gateway.PlatformAPIDiscoverer{LabelSelector: cfg.PlatformSelector}, nil
	default:
		return nil, fmt.Errorf("neutrino-gateway: unknown discovery-mode %q", cfg.DiscoveryMode)
	}
}

func runAdminServer(bind string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	logger := log.WithComponent("admin")
	logger.Info().Str("bind", bind).Msg("admin server listening")
	if err := http.ListenAndServe(bind, mux); err != nil {
		logger.Error().Err(err).Msg("admin server exited")
	}
}
