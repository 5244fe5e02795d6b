package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/config"
	"github.com/nithinkrishnamurthi/neutrino/pkg/events"
	"github.com/nithinkrishnamurthi/neutrino/pkg/httpfront"
	"github.com/nithinkrishnamurthi/neutrino/pkg/log"
	"github.com/nithinkrishnamurthi/neutrino/pkg/metrics"
	"github.com/nithinkrishnamurthi/neutrino/pkg/pool"
	"github.com/nithinkrishnamurthi/neutrino/pkg/routetable"
	"github.com/nithinkrishnamurthi/neutrino/pkg/scheduler"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/spf13/cobra"

	_ "github.com/nithinkrishnamurthi/neutrino/internal/exampleapp"
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
	Use:     "neutrino",
	Short:   "neutrino is a single-node HTTP-to-worker-pool task orchestrator",
	Version: Version,
	RunE:    runNode,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("neutrino version %s (%s)\n", Version, Commit))
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to a neutrino.yaml config file")
}

func runNode(cmd *cobra.Command, args []string) error {
	nm, err := config.NewNodeManager(cfgFile)
	if err != nil {
		return fmt.Errorf("neutrino: load config: %w", err)
	}
	cfg := nm.Get()

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("cmd")

	table, err := routetable.Load(cfg.RouteSpecPath)
	if err != nil {
		return fmt.Errorf("neutrino: load route spec: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go events.LogSubscriber(log.WithComponent("events"), broker.Subscribe())

	p := pool.New(pool.Config{
		WorkerCount:          cfg.WorkerCount,
		WorkerBinary:         cfg.WorkerBinary,
		AppEntry:             cfg.AppEntry,
		SocketDir:            cfg.SocketDir,
		Capability:           types.DefaultResourceVector(),
		MissedHeartbeatLimit: cfg.MissedHeartbeatsBeforeDeath,
		RecycleAfterTasks:    uint64(cfg.MaxRequestsPerWorker),
		RecycleAfterRSSMB:    cfg.MaxRSSPerWorkerMB,
		RecycleAfterAge:      cfg.MaxWorkerAge,
		RespawnBackoffMin:    200 * time.Millisecond,
		RespawnBackoffMax:    30 * time.Second,
		HeartbeatInterval:    cfg.HeartbeatInterval,
	}, broker)
	if err := p.Start(); err != nil {
		return fmt.Errorf("neutrino: start pool: %w", err)
	}

	sched := scheduler.New(scheduler.Config{ConcurrencyCeiling: scheduler.DefaultConcurrencyCeiling})

	front := httpfront.NewServer(httpfront.Config{
		BindAddr:        cfg.HTTPBind,
		DefaultDeadline: cfg.TaskDeadline,
		MaxBodyBytes:    httpfront.DefaultConfig().MaxBodyBytes,
	}, table, p, sched, broker)

	nm.OnRouteSpecChange(func(path string) {
		newTable, err := routetable.Load(path)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("route-spec reload failed, keeping previous table")
			return
		}
		front.Reload(newTable)
		logger.Info().Str("path", path).Msg("route-spec reloaded")
	})
	nm.WatchRouteSpec()

	go runAdminServer(cfg.MetricsBind, p)

	errCh := make(chan error, 1)
	go func() { errCh <- front.ListenAndServe() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		p.Stop(cfg.TaskDeadline + 10*time.Second)
		return nil
	}
}

func runAdminServer(bind string, p *pool.Pool) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if len(p.Snapshot()) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	logger := log.WithComponent("admin")
	logger.Info().Str("bind", bind).Msg("admin server listening")
	if err := http.ListenAndServe(bind, mux); err != nil {
		logger.Error().Err(err).Msg("admin server exited")
	}
}
