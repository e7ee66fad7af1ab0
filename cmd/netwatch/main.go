package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jihwankim/netwatch/pkg/config"
	"github.com/jihwankim/netwatch/pkg/reporting"
)

var (
	// Global flags
	cfgFile     string
	verbose     bool
	writeConfig string
	version     = "dev" // Will be set by build flags
)

// Exit codes: 0 clean shutdown, 1 configuration error, 2 fatal I/O.
const (
	exitConfig = 1
	exitFatal  = 2
)

// exitError carries a process exit code out through cobra's RunE chain.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "netwatch",
	Short: "Hierarchical network-health monitoring via carrier spectral purity",
	Long: `NetWatch treats every monitored endpoint as the transmitter of a narrowband
sinusoidal carrier and diagnoses infrastructure problems by measuring the
spectral purity of the received signal. Packet loss, jitter, reordering, and
bursty delay all leak carrier energy into the noise floor, so a
frequency-domain SNR becomes a continuous, dimensionless health score.

Components: 'agent' emits the carrier, 'rack' ingests and analyzes it,
'dc' aggregates rack reports, 'check' verifies exported metrics.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; env vars take priority)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&writeConfig, "write-config", "", "write the resolved configuration to this path and continue")

	// Subcommands are defined in separate files:
	// - agentCmd in agent.go
	// - rackCmd in rack.go
	// - dcCmd in dc.go
	// - checkCmd in check.go
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(rackCmd)
	rootCmd.AddCommand(dcCmd)
	rootCmd.AddCommand(checkCmd)
}

// loadConfig resolves defaults, the optional YAML file, and the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}

	if writeConfig != "" {
		if err := cfg.Save(writeConfig); err != nil {
			return nil, &exitError{code: exitConfig, err: err}
		}
	}

	return cfg, nil
}

// newLogger builds the process logger from config plus the --verbose flag.
func newLogger(cfg *config.Config) *reporting.Logger {
	level := reporting.LogLevel(cfg.Logging.Level)
	if verbose {
		level = reporting.LogLevelDebug
	}

	return reporting.NewLogger(reporting.LoggerConfig{
		Level:  level,
		Format: reporting.LogFormat(cfg.Logging.Format),
		Output: os.Stdout,
	})
}

// configError wraps a validation failure with the config exit code.
func configError(err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf("invalid configuration: %w", err)}
}

// fatalError wraps an unrecoverable I/O failure with the fatal exit code.
func fatalError(err error) error {
	return &exitError{code: exitFatal, err: err}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}
