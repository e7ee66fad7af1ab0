package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jihwankim/netwatch/pkg/agent"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Args:  cobra.NoArgs,
	Short: "Run the server agent (sine source)",
	Long: `Emits a phase-locked sinusoidal sample stream over UDP toward the rack
controller. The carrier frequency is derived from RACK_ID and SERVER_ID.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().Bool("dry-run", false, "validate configuration without opening sockets")
}

func runAgent(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Agent.Validate(); err != nil {
		return configError(err)
	}

	logger := newLogger(cfg)
	a := agent.New(cfg.Agent, logger)

	if dryRun {
		fmt.Printf("configuration valid; carrier frequency %.3f Hz (dry-run mode)\n", a.Frequency())
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		return fatalError(err)
	}
	return nil
}
