package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"livecode/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "livecode",
	Short: "Run code on a remote executor and watch the output stream back",
	Long: `livecode - submit Python, C++ or Java source to an execution service and
stream compilation and program output live.

The client talks to the executor over a single websocket per run. Use
"livecode serve" to start a local reference executor for development.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console, json")
}

// buildLogger applies the persistent log flags over the given defaults.
func buildLogger(cmd *cobra.Command, level, format string) (*zap.Logger, error) {
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		format = v
	}
	return logger.New(logger.Config{Level: level, Format: format})
}
