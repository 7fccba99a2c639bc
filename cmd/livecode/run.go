package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"livecode/internal/config"
	"livecode/internal/playground"
	"livecode/internal/protocol"
	"livecode/internal/session"
	"livecode/internal/transport"
	"livecode/internal/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute code and stream its output",
	Long: `Send code to the executor and print its output as it arrives.

Code can be provided via:
  - File argument: livecode run main.cpp
  - Inline flag:   livecode run -l python -c 'print(1)'
  - Nothing:       livecode run -l java   (runs the language template)

With --watch the file is re-run every time it is saved. Saves that land
while a run is still in progress are ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("lang", "l", "", "Language: python, cpp, java (default: from file extension)")
	runCmd.Flags().StringP("code", "c", "", "Code to execute")
	runCmd.Flags().String("endpoint", "", "Executor websocket endpoint (default "+config.DefaultEndpoint+")")
	runCmd.Flags().String("templates", "", "YAML file overriding the language templates")
	runCmd.Flags().BoolP("watch", "w", false, "Re-run the file whenever it changes")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.LoadClient()
	if v, _ := cmd.Flags().GetString("endpoint"); v != "" {
		cfg.Endpoint = v
	}
	if v, _ := cmd.Flags().GetString("templates"); v != "" {
		cfg.TemplatesPath = v
	}

	log, err := buildLogger(cmd, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	templates := playground.DefaultTemplates()
	if cfg.TemplatesPath != "" {
		if templates, err = playground.LoadTemplates(cfg.TemplatesPath); err != nil {
			return err
		}
	}

	var filename string
	if len(args) > 0 {
		filename = args[0]
	}
	langFlag, _ := cmd.Flags().GetString("lang")
	lang, err := detectLanguage(langFlag, filename)
	if err != nil {
		return err
	}

	inline, _ := cmd.Flags().GetString("code")
	watch, _ := cmd.Flags().GetBool("watch")
	if watch && filename == "" {
		return fmt.Errorf("--watch requires a file argument")
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	ctrl := session.NewController(
		transport.NewManager(nil, log),
		cfg.Endpoint,
		session.WithLogger(log),
		session.WithOutputHook(func(fragment string) { io.WriteString(out, fragment) }),
	)
	pg := playground.New(ctrl, templates, lang)
	defer pg.Close()

	switch {
	case inline != "":
		pg.SetCode(inline)
	case filename != "":
		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("read %s: %w", filename, err)
		}
		pg.SetCode(string(data))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !watch {
		if err := pg.RunCode(); err != nil {
			return err
		}
		select {
		case <-ctrl.Done():
		case <-ctx.Done():
			log.Info("interrupted, closing session")
			return nil
		}
		if err := ctrl.Err(); err != nil {
			return fmt.Errorf("execution failed: %w", err)
		}
		return nil
	}

	w, err := watcher.New(filename, watcher.DefaultDebounce, func(path string) {
		rerun(pg, path, out, log)
	}, log)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := pg.RunCode(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// rerun reloads path into the playground and starts a new run.
func rerun(pg *playground.Playground, path string, out io.Writer, log *zap.Logger) {
	if pg.IsExecuting() {
		log.Info("run in progress, change ignored", zap.String("path", path))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	pg.SetCode(string(data))

	fmt.Fprintf(out, "\n--- %s changed, re-running ---\n", filepath.Base(path))
	if err := pg.RunCode(); err != nil {
		log.Warn("run failed", zap.Error(err))
	}
}

// detectLanguage resolves the language from the flag, falling back to
// the file extension.
func detectLanguage(langFlag, filename string) (protocol.Language, error) {
	lang := langFlag

	if lang == "" && filename != "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".py":
			lang = "python"
		case ".cpp", ".cc", ".cxx":
			lang = "cpp"
		case ".java":
			lang = "java"
		}
	}

	if lang == "" {
		return "", fmt.Errorf("language required: use --lang python, cpp or java")
	}
	return protocol.ParseLanguage(lang)
}

// lockedWriter serializes writes from the session hook and the watcher.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
