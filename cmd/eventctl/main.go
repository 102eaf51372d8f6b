package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/task-notifier/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "eventctl",
	Short: "Operator tooling for the task notifier",
	Long:  `eventctl publishes task lifecycle events to the notifier's broker and mints test tokens, using the notifier's own configuration.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "Path to the notifier config file")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
