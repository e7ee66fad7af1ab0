package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jihwankim/netwatch/pkg/dc"
	"github.com/jihwankim/netwatch/pkg/telemetry"
)

var dcCmd = &cobra.Command{
	Use:   "dc",
	Args:  cobra.NoArgs,
	Short: "Run the datacenter controller",
	Long: `Accepts rack health reports over TCP, aggregates them into a
datacenter-wide health score, and exposes Prometheus metrics.`,
	RunE: runDC,
}

func init() {
	dcCmd.Flags().Bool("dry-run", false, "validate configuration without opening sockets")
}

func runDC(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.DC.Validate(); err != nil {
		return configError(err)
	}

	if dryRun {
		fmt.Printf("configuration valid; tcp=%d metrics=%d (dry-run mode)\n",
			cfg.DC.ListenPort, cfg.DC.MetricsPort)
		return nil
	}

	logger := newLogger(cfg)
	logger.Info("dc controller starting", "version", version, "dc_id", cfg.DC.DCID)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := dc.NewMetrics(registry)

	ctrl := dc.NewController(cfg.DC, logger, metrics)
	if err := ctrl.Listen(); err != nil {
		return fatalError(err)
	}

	scrape := telemetry.NewServer(cfg.DC.MetricsPort, registry, logger)
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
