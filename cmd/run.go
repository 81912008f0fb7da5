package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/caldera-rt/runner/internal/config"
	"github.com/caldera-rt/runner/internal/log"
	"github.com/caldera-rt/runner/internal/metrics"
	"github.com/caldera-rt/runner/internal/runner"
)

// runCmd starts the control loop in the foreground. It is also the
// default action when runner is invoked with no subcommand (§6:
// "runner takes no positional args").
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForeground(configPath)
	},
}

func init() {
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runForeground(configPath)
	}
}

func runForeground(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger := slog.Default()

	ctx := context.Background()
	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := ms.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer ms.Stop(ctx)
	}

	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("construct runner: %w", err)
	}
	if err := r.Start(); err != nil {
		return fmt.Errorf("start runner: %w", err)
	}

	return r.Run()
}
