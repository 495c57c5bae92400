// Package runner provides guarded external-process invocation for the
// bootstrap pipeline: context-aware command execution with per-command
// timeouts, spawn pacing, and structured logging.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Result contains the outcome of a single command invocation.
type Result struct {
	// Stdout is the captured standard output, empty for streamed runs.
	Stdout string
	// Stderr is the captured standard error, empty for streamed runs.
	Stderr string
	// ExitCode is the command's exit code; 0 on success, -1 when the
	// command never ran or was terminated by a signal.
	ExitCode int
}

// Runner defines the command execution interface used by the pipeline steps.
// The two modes mirror how the steps consume output: identity and probe
// commands capture it, install commands stream it to the operator.
type Runner interface {
	// Run executes a command and captures its output.
	Run(ctx context.Context, name string, args ...string) (Result, error)
	// RunStreaming executes a command with stdout/stderr attached to the
	// provided writers.
	RunStreaming(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error
}

// CommandRunner executes external commands with a per-command timeout and a
// spawn-rate limiter. The limiter keeps rapid probe sequences from spawning
// interpreters faster than the runner host can reasonably absorb.
type CommandRunner struct {
	timeout time.Duration
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewCommandRunner creates a new CommandRunner.
//
// Parameters:
//   - timeout: Timeout applied to every command invocation
//   - spawnRate: Maximum command spawns per second (burst equals the rate)
//   - logger: The zerolog logger for structured logging
//
// Returns a configured CommandRunner ready for use.
func NewCommandRunner(timeout time.Duration, spawnRate int, logger zerolog.Logger) *CommandRunner {
	return &CommandRunner{
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(spawnRate), spawnRate),
		logger:  logger,
	}
}

// Run executes a command and captures stdout and stderr separately.
// The returned Result always carries the exit code, including for failed
// commands; err is non-nil whenever the command did not exit zero.
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("spawn limiter wait failed: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug().
		Str("command", name).
		Strs("args", args).
		Msg("Executing command")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:   strings.TrimRight(stdout.String(), "\n"),
		Stderr:   strings.TrimRight(stderr.String(), "\n"),
		ExitCode: exitCode(err),
	}

	if err != nil {
		r.logger.Debug().
			Err(err).
			Str("command", name).
			Int("exit_code", result.ExitCode).
			Msg("Command failed")
		return result, fmt.Errorf("command %s failed: %w", name, err)
	}

	r.logger.Debug().
		Str("command", name).
		Msg("Command succeeded")

	return result, nil
}

// RunStreaming executes a command with output attached to the provided
// writers. Used for the install steps so pip progress reaches the operator
// as it happens.
func (r *CommandRunner) RunStreaming(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("spawn limiter wait failed: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Info().
		Str("command", name).
		Strs("args", args).
		Msg("Executing command")

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		r.logger.Error().
			Err(err).
			Str("command", name).
			Int("exit_code", exitCode(err)).
			Msg("Command failed")
		return fmt.Errorf("command %s failed: %w", name, err)
	}

	return nil
}

// exitCode extracts the process exit code from a command error.
// Returns 0 on nil error and -1 when no exit code is available (command not
// found, killed by signal, context cancelled).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ExitCode extracts the underlying process exit code from an error returned
// by a Runner, so failures propagate the failing command's status. Returns
// fallback when the error carries no exit code.
func ExitCode(err error, fallback int) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
	}
	return fallback
}
