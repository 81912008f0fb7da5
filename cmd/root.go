// Package cmd implements CLI commands using the cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "runner",
	Short: "runner - a partitioned time-triggered control daemon",
	Long: `runner hosts a fixed set of component processes on dedicated CPU
cores, driving each exactly once per minor frame via a static cyclic
schedule, routing typed messages between components, UDP, and itself,
and applying live reconfiguration without missing a period.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configuration/default.yaml",
		"bootstrap configuration file path")

	rootCmd.AddCommand(runCmd)
}
