package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"livecode/internal/executor"
	"livecode/internal/protocol"
	"livecode/internal/session"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default; cobra keeps parsed
// values between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// newExecutor starts a reference executor that runs "python" code as sh.
func newExecutor(t *testing.T) string {
	t.Helper()
	toolchains := map[protocol.Language]executor.Toolchain{
		protocol.LanguagePython: {FileName: "main.sh", Run: []string{"sh", "main.sh"}},
	}
	runner := executor.NewRunner(t.TempDir(), 5*time.Second, toolchains, nil)
	srv := httptest.NewServer(executor.NewServer(runner, nil, "*", nil).Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/execute"
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"livecode",
		"Python",
		"run",
		"serve",
		"languages",
		"--log-level",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "run", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--code",
		"--lang",
		"--endpoint",
		"--templates",
		"--watch",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("run help output should contain %q", phrase)
		}
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "serve", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--port",
		"--work-dir",
		"--timeout",
		"--allow-origin",
		"/ws/execute",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("serve help output should contain %q", phrase)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		flag     string
		filename string
		want     protocol.Language
		wantErr  bool
	}{
		{"", "main.py", protocol.LanguagePython, false},
		{"", "Main.JAVA", protocol.LanguageJava, false},
		{"", "prog.cc", protocol.LanguageCPP, false},
		{"c++", "", protocol.LanguageCPP, false},
		{"java", "main.py", protocol.LanguageJava, false},
		{"", "notes.txt", "", true},
		{"", "", "", true},
		{"rust", "", "", true},
	}

	for _, tt := range tests {
		got, err := detectLanguage(tt.flag, tt.filename)
		if tt.wantErr {
			if err == nil {
				t.Errorf("detectLanguage(%q, %q) expected error, got %q", tt.flag, tt.filename, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("detectLanguage(%q, %q) unexpected error: %v", tt.flag, tt.filename, err)
			continue
		}
		if got != tt.want {
			t.Errorf("detectLanguage(%q, %q) = %q, want %q", tt.flag, tt.filename, got, tt.want)
		}
	}
}

func TestCLIRunWatchRequiresFile(t *testing.T) {
	_, err := executeCommand(rootCmd, "run", "--lang", "python", "--code", "", "--watch")
	if err == nil || !strings.Contains(err.Error(), "--watch requires a file") {
		t.Fatalf("expected watch error, got %v", err)
	}
}

func TestCLIRunMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.py")
	_, err := executeCommand(rootCmd, "run", "--code", "", "--watch=false", missing)
	if err == nil || !strings.Contains(err.Error(), "missing.py") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestCLIRunInline(t *testing.T) {
	endpoint := newExecutor(t)

	output, err := executeCommand(rootCmd, "run",
		"--lang", "python",
		"--code", "echo hello",
		"--watch=false",
		"--endpoint", endpoint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "[status] Starting execution...\n" +
		"[status] Running...\n" +
		"hello\n" +
		"[status] Execution complete\n" +
		session.TerminalMarker
	if output != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCLIRunFile(t *testing.T) {
	endpoint := newExecutor(t)

	path := filepath.Join(t.TempDir(), "main.py")
	if err := os.WriteFile(path, []byte("echo from-file\nexit 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := executeCommand(rootCmd, "run",
		"--lang", "",
		"--code", "",
		"--watch=false",
		"--endpoint", endpoint,
		path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"from-file\n", "[error] Process exited with code 3\n", session.TerminalMarker} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output should contain %q, got %q", phrase, output)
		}
	}
}

func TestCLIRunUnreachableExecutorFails(t *testing.T) {
	srv := httptest.NewServer(nil)
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/execute"
	srv.Close()

	output, err := executeCommand(rootCmd, "run",
		"--lang", "python",
		"--code", "echo hello",
		"--endpoint", endpoint)
	if err == nil || !strings.Contains(err.Error(), "execution failed") {
		t.Fatalf("expected execution failure, got %v", err)
	}
	if !strings.Contains(output, "[error] connection error:") {
		t.Errorf("output should report the connection error, got %q", output)
	}
	if !strings.Contains(output, session.TerminalMarker) {
		t.Errorf("output should end the session, got %q", output)
	}
}

func TestCLILanguages(t *testing.T) {
	endpoint := newExecutor(t)

	output, err := executeCommand(rootCmd, "languages", "--endpoint", endpoint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output != "python\ncpp\njava\n" {
		t.Errorf("languages output = %q", output)
	}
}
