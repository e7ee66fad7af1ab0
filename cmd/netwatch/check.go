package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/netwatch/pkg/watch"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Args:  cobra.NoArgs,
	Short: "Verify deployment health from exported metrics",
	Long: `Queries a Prometheus server for the netwatch series and evaluates health
criteria against them. Exit code 0 means every criterion passed.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("prometheus", "", "Prometheus URL (overrides config and PROMETHEUS_URL)")
	checkCmd.Flags().Float64("min-health", 0.9, "minimum acceptable health score")
	checkCmd.Flags().Float64("max-spectral-error", 0.5, "maximum acceptable per-server spectral error")
}

func runCheck(cmd *cobra.Command, args []string) error {
	promURL, _ := cmd.Flags().GetString("prometheus")
	minHealth, _ := cmd.Flags().GetFloat64("min-health")
	maxSpectral, _ := cmd.Flags().GetFloat64("max-spectral-error")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if promURL != "" {
		cfg.Prometheus.URL = promURL
	}

	logger := newLogger(cfg)

	client, err := watch.NewClient(cfg.Prometheus.URL, cfg.Prometheus.Timeout)
	if err != nil {
		return configError(err)
	}

	ctx := cmd.Context()
	if err := client.TestConnection(ctx); err != nil {
		return fatalError(fmt.Errorf("prometheus unreachable at %s: %w", cfg.Prometheus.URL, err))
	}

	criteria := []watch.Criterion{
		{
			Name:      "dc_health",
			Query:     "netwatch_dc_health_score",
			Threshold: fmt.Sprintf(">= %g", minHealth),
			AllSeries: true,
		},
		{
			Name:      "rack_health",
			Query:     "netwatch_rack_health_score",
			Threshold: fmt.Sprintf(">= %g", minHealth),
			AllSeries: true,
		},
		{
			Name:      "server_spectral_error",
			Query:     "netwatch_server_spectral_error",
			Threshold: fmt.Sprintf("< %g", maxSpectral),
			AllSeries: true,
		},
	}

	checker := watch.NewChecker(client)
	results, err := checker.EvaluateAll(ctx, criteria)
	if err != nil {
		logger.Warn("some criteria could not be evaluated", "error", err.Error())
	}

	failed := 0
	for _, result := range results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%-4s %-24s %s\n", status, result.Criterion.Name, result.Message)
	}

	if failed > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d criteria failed", failed, len(results))}
	}
	fmt.Printf("all %d criteria passed\n", len(results))
	return nil
}
