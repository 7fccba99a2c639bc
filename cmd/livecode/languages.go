package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"livecode/internal/config"
	"livecode/internal/executor"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the languages the executor supports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadClient()
		if v, _ := cmd.Flags().GetString("endpoint"); v != "" {
			cfg.Endpoint = v
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		langs, err := executor.FetchLanguages(ctx, nil, cfg.Endpoint)
		if err != nil {
			return err
		}
		for _, lang := range langs {
			fmt.Fprintln(cmd.OutOrStdout(), lang)
		}
		return nil
	},
}

func init() {
	languagesCmd.Flags().String("endpoint", "", "Executor websocket endpoint (default "+config.DefaultEndpoint+")")
	rootCmd.AddCommand(languagesCmd)
}
