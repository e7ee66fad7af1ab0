package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jihwankim/netwatch/pkg/rack"
	"github.com/jihwankim/netwatch/pkg/telemetry"
)

var rackCmd = &cobra.Command{
	Use:   "rack",
	Args:  cobra.NoArgs,
	Short: "Run the rack controller",
	Long: `Terminates the UDP sample streams from this rack's servers, runs periodic
FFT analysis over per-server rolling buffers, exposes Prometheus metrics, and
forwards an aggregated rack health report to the dc controller over TCP.`,
	RunE: runRack,
}

func init() {
	rackCmd.Flags().Bool("dry-run", false, "validate configuration without opening sockets")
}

func runRack(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Rack.Validate(); err != nil {
		return configError(err)
	}

	if dryRun {
		fmt.Printf("configuration valid; udp=%d metrics=%d (dry-run mode)\n",
			cfg.Rack.ListenPort(), cfg.Rack.ScrapePort())
		return nil
	}

	logger := newLogger(cfg)
	logger.Info("rack controller starting", "version", version, "rack_id", cfg.Rack.RackID)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := rack.NewMetrics(registry)

	reporter := rack.NewReporter(cfg.Rack.DCHost, cfg.Rack.DCPort, logger.WithComponent("reporter"), metrics)
	ctrl := rack.NewController(cfg.Rack, logger, metrics, reporter)
	if err := ctrl.Listen(); err != nil {
		return fatalError(err)
	}

	scrape := telemetry.NewServer(cfg.Rack.ScrapePort(), registry, logger)
	if err := scrape.Listen(); err != nil {
		return fatalError(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scrapeErr := make(chan error, 1)
	go func() {
		scrapeErr <- scrape.Serve(ctx)
	}()

	if err := ctrl.Run(ctx); err != nil {
		return fatalError(err)
	}
	if err := <-scrapeErr; err != nil {
		logger.Error("metrics server failed", "error", err.Error())
	}
	return nil
}
