package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"livecode/internal/logger"
	"livecode/internal/protocol"
)

const (
	readerBufSize = 64 * 1024

	// waitDelay bounds Wait once a step's context is done.
	waitDelay = time.Second
	// outputGrace bounds draining output after a step's process exits.
	outputGrace = 500 * time.Millisecond
)

// Outcome summarizes how an execution ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeError       Outcome = "error"
)

// Emitter delivers one stream message to the client. An error means the
// client is gone and the execution should stop.
type Emitter func(kind protocol.MessageKind, data string) error

// Runner compiles and runs submitted code as local processes, one work
// directory per execution. It applies no isolation or resource limits.
type Runner struct {
	workRoot   string
	timeout    time.Duration
	toolchains map[protocol.Language]Toolchain
	log        *zap.Logger
}

// NewRunner creates a runner rooted at workRoot. Each compile or run step
// is limited to timeout; zero means no limit.
func NewRunner(workRoot string, timeout time.Duration, toolchains map[protocol.Language]Toolchain, log *zap.Logger) *Runner {
	if toolchains == nil {
		toolchains = DefaultToolchains()
	}
	return &Runner{
		workRoot:   workRoot,
		timeout:    timeout,
		toolchains: toolchains,
		log:        logger.OrNop(log),
	}
}

// Execute runs req and streams its progress through emit. The returned
// error is non-nil only when emit failed.
func (r *Runner) Execute(ctx context.Context, req protocol.ExecutionRequest, emit Emitter) (Outcome, error) {
	tc, ok := r.toolchains[req.Language]
	if !ok {
		return OutcomeUnsupported, emit(protocol.KindError, fmt.Sprintf("Unsupported language: %s", req.Language))
	}

	id := uuid.New().String()
	workDir := filepath.Join(r.workRoot, id)
	log := r.log.With(zap.String("execution", id), zap.String("language", req.Language.String()))

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return OutcomeError, emit(protocol.KindError, fmt.Sprintf("create work dir: %v", err))
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, tc.FileName), []byte(req.Code), 0o644); err != nil {
		return OutcomeError, emit(protocol.KindError, fmt.Sprintf("write source: %v", err))
	}

	if err := emit(protocol.KindStatus, "Starting execution..."); err != nil {
		return OutcomeError, err
	}

	if tc.Compile != nil {
		outcome, err := r.step(ctx, log, tc.Compile, workDir, "Compiling...", emit)
		if err != nil || outcome != OutcomeSuccess {
			return outcome, err
		}
	}

	outcome, err := r.step(ctx, log, tc.Run, workDir, "Running...", emit)
	if err != nil || outcome != OutcomeSuccess {
		return outcome, err
	}

	return OutcomeSuccess, emit(protocol.KindStatus, "Execution complete")
}

// step runs one command with stdout and stderr merged, emitting output as
// it is read.
func (r *Runner) step(ctx context.Context, log *zap.Logger, argv []string, dir, status string, emit Emitter) (Outcome, error) {
	if err := emit(protocol.KindStatus, status); err != nil {
		return OutcomeError, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	outR, outW, err := os.Pipe()
	if err != nil {
		return OutcomeError, emit(protocol.KindError, fmt.Sprintf("create output pipe: %v", err))
	}
	defer outR.Close()
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		outW.Close()
		log.Warn("start failed", zap.Strings("argv", argv), zap.Error(err))
		return OutcomeError, emit(protocol.KindError, err.Error())
	}

	// The child holds its own copy of the write end.
	outW.Close()

	streamDone := make(chan error, 1)
	go func() {
		err := streamOutput(outR, emit)
		if err != nil {
			killProcessGroup(cmd)
		}
		streamDone <- err
	}()

	waitErr := cmd.Wait()

	// Background children still hold the pipe open; take them down with
	// the step.
	if err := killProcessGroup(cmd); err != nil {
		log.Debug("kill process group", zap.Error(err))
	}

	var emitErr error
	select {
	case emitErr = <-streamDone:
	case <-time.After(outputGrace):
		// Something outside the group still holds the write end.
		outR.Close()
		emitErr = <-streamDone
	}
	if emitErr != nil {
		return OutcomeError, emitErr
	}

	if ctx.Err() == context.DeadlineExceeded {
		return OutcomeTimeout, emit(protocol.KindError, fmt.Sprintf("Execution timed out after %s", r.timeout))
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return OutcomeError, emit(protocol.KindError, waitErr.Error())
		}
		exitCode = exitErr.ExitCode()
	}

	log.Debug("step finished", zap.Strings("argv", argv), zap.Int("exitCode", exitCode))

	if exitCode != 0 {
		return OutcomeFailed, emit(protocol.KindError, fmt.Sprintf("Process exited with code %d", exitCode))
	}
	return OutcomeSuccess, nil
}

// streamOutput emits everything read from pipe, one line per message.
// A final line without a trailing newline is emitted as is.
func streamOutput(pipe io.Reader, emit Emitter) error {
	reader := bufio.NewReaderSize(pipe, readerBufSize)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if emitErr := emit(protocol.KindOutput, line); emitErr != nil {
				return emitErr
			}
		}
		if err != nil {
			return nil
		}
	}
}
