package executor

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecode/internal/protocol"
)

// shellToolchains stand in for real compilers so tests only need sh.
func shellToolchains() map[protocol.Language]Toolchain {
	return map[protocol.Language]Toolchain{
		protocol.LanguagePython: {
			FileName: "main.sh",
			Run:      []string{"sh", "main.sh"},
		},
		protocol.LanguageCPP: {
			FileName: "main.sh",
			Compile:  []string{"sh", "-c", "grep -q COMPILE_ERROR main.sh && echo 'syntax error' && exit 1; exit 0"},
			Run:      []string{"sh", "main.sh"},
		},
	}
}

type recorded struct {
	Kind protocol.MessageKind
	Data string
}

type recorder struct {
	messages []recorded
	failAt   int
}

func (r *recorder) emit(kind protocol.MessageKind, data string) error {
	if r.failAt > 0 && len(r.messages)+1 >= r.failAt {
		return errors.New("client gone")
	}
	r.messages = append(r.messages, recorded{kind, data})
	return nil
}

func (r *recorder) kinds(kind protocol.MessageKind) []string {
	var out []string
	for _, m := range r.messages {
		if m.Kind == kind {
			out = append(out, m.Data)
		}
	}
	return out
}

func newTestRunner(t *testing.T, timeout time.Duration) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	return NewRunner(root, timeout, shellToolchains(), nil), root
}

func TestRunner_Success(t *testing.T) {
	r, root := newTestRunner(t, 5*time.Second)
	rec := &recorder{}

	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "echo hello\necho world\n",
		Language: protocol.LanguagePython,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	assert.Equal(t, []recorded{
		{protocol.KindStatus, "Starting execution..."},
		{protocol.KindStatus, "Running..."},
		{protocol.KindOutput, "hello\n"},
		{protocol.KindOutput, "world\n"},
		{protocol.KindStatus, "Execution complete"},
	}, rec.messages)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dir must be removed")
}

func TestRunner_StderrIsMerged(t *testing.T) {
	r, _ := newTestRunner(t, 5*time.Second)
	rec := &recorder{}

	_, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "echo out\necho err 1>&2\n",
		Language: protocol.LanguagePython,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"out\n", "err\n"}, rec.kinds(protocol.KindOutput))
}

func TestRunner_PartialLineKept(t *testing.T) {
	r, _ := newTestRunner(t, 5*time.Second)
	rec := &recorder{}

	_, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "printf abc",
		Language: protocol.LanguagePython,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, rec.kinds(protocol.KindOutput))
}

func TestRunner_NonZeroExit(t *testing.T) {
	r, _ := newTestRunner(t, 5*time.Second)
	rec := &recorder{}

	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "echo oops\nexit 3\n",
		Language: protocol.LanguagePython,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, []string{"Process exited with code 3"}, rec.kinds(protocol.KindError))
	assert.NotContains(t, rec.kinds(protocol.KindStatus), "Execution complete")
}

func TestRunner_CompileStep(t *testing.T) {
	r, _ := newTestRunner(t, 5*time.Second)
	rec := &recorder{}

	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "echo compiled program\n",
		Language: protocol.LanguageCPP,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, []string{"Starting execution...", "Compiling...", "Running...", "Execution complete"}, rec.kinds(protocol.KindStatus))
	assert.Equal(t, []string{"compiled program\n"}, rec.kinds(protocol.KindOutput))
}

func TestRunner_CompileFailureSkipsRun(t *testing.T) {
	r, _ := newTestRunner(t, 5*time.Second)
	rec := &recorder{}

	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "# COMPILE_ERROR\necho should not run\n",
		Language: protocol.LanguageCPP,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, []string{"syntax error\n"}, rec.kinds(protocol.KindOutput))
	assert.NotContains(t, rec.kinds(protocol.KindStatus), "Running...")
}

func TestRunner_UnsupportedLanguage(t *testing.T) {
	r, _ := newTestRunner(t, 5*time.Second)
	rec := &recorder{}

	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "fn main() {}",
		Language: "rust",
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsupported, outcome)
	assert.Equal(t, []recorded{{protocol.KindError, "Unsupported language: rust"}}, rec.messages)
}

func TestRunner_Timeout(t *testing.T) {
	r, _ := newTestRunner(t, 200*time.Millisecond)
	rec := &recorder{}

	start := time.Now()
	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "exec sleep 5\n",
		Language: protocol.LanguagePython,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome)
	assert.Less(t, time.Since(start), 3*time.Second)

	errs := rec.kinds(protocol.KindError)
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0], "Execution timed out"), errs[0])
}

func TestRunner_TimeoutKillsBackgroundChildren(t *testing.T) {
	r, _ := newTestRunner(t, 500*time.Millisecond)
	rec := &recorder{}

	start := time.Now()
	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "sleep 5 &\nsleep 30\n",
		Language: protocol.LanguagePython,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome)
	assert.Less(t, time.Since(start), 3*time.Second)

	errs := rec.kinds(protocol.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Execution timed out after 500ms", errs[0])
}

func TestRunner_ExitDoesNotWaitForBackgroundChildren(t *testing.T) {
	r, _ := newTestRunner(t, 0)
	rec := &recorder{}

	start := time.Now()
	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "sleep 30 &\necho done\n",
		Language: protocol.LanguagePython,
	}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, []string{"done\n"}, rec.kinds(protocol.KindOutput))
}

func TestRunner_EmitFailureStops(t *testing.T) {
	r, _ := newTestRunner(t, 5*time.Second)
	rec := &recorder{failAt: 3}

	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{
		Code:     "echo one\necho two\necho three\n",
		Language: protocol.LanguagePython,
	}, rec.emit)
	require.Error(t, err)
	assert.Equal(t, OutcomeError, outcome)
	assert.Len(t, rec.messages, 2)
}

func TestRunner_MissingBinary(t *testing.T) {
	root := t.TempDir()
	r := NewRunner(root, time.Second, map[protocol.Language]Toolchain{
		protocol.LanguageJava: {FileName: "Main.java", Run: []string{"definitely-not-a-real-binary-livecode"}},
	}, nil)
	rec := &recorder{}

	outcome, err := r.Execute(context.Background(), protocol.ExecutionRequest{Code: "x", Language: protocol.LanguageJava}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, outcome)
	assert.Len(t, rec.kinds(protocol.KindError), 1)
}

func TestDefaultToolchains(t *testing.T) {
	tc := DefaultToolchains()
	for _, lang := range protocol.Languages() {
		assert.Contains(t, tc, lang)
	}
	assert.Nil(t, tc[protocol.LanguagePython].Compile)
	assert.Equal(t, "Main.java", tc[protocol.LanguageJava].FileName)
}
