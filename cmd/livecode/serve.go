package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"livecode/internal/config"
	"livecode/internal/executor"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reference executor",
	Long: `Start a development executor that compiles and runs code as local
processes. It does not sandbox or limit the submitted code; only run it
on a machine you trust the submitters with.

Endpoints:
  GET /ws/execute   websocket: one request in, streamed messages out
  GET /languages    supported languages
  GET /metrics      Prometheus metrics
  GET /             service banner`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default 8000)")
	serveCmd.Flags().String("work-dir", "", "Directory for per-execution work dirs")
	serveCmd.Flags().Duration("timeout", 0, "Limit for each compile or run step (default 10s)")
	serveCmd.Flags().String("allow-origin", "", "Browser origin allowed by CORS (default http://localhost:3000)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.LoadServer()
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetString("work-dir"); v != "" {
		cfg.WorkDir = v
	}
	if v, _ := cmd.Flags().GetDuration("timeout"); v != 0 {
		cfg.RunTimeout = v
	}
	if v, _ := cmd.Flags().GetString("allow-origin"); v != "" {
		cfg.AllowOrigin = v
	}

	log, err := buildLogger(cmd, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	runner := executor.NewRunner(cfg.WorkDir, cfg.RunTimeout, executor.DefaultToolchains(), log)
	srv := executor.NewServer(runner, executor.NewMetrics(), cfg.AllowOrigin, log)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Handler(),
	}

	// Graceful shutdown on signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	log.Info("executor listening",
		zap.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Port)),
		zap.String("workDir", cfg.WorkDir),
		zap.Duration("timeout", cfg.RunTimeout))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}
