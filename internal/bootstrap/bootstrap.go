// Package bootstrap orchestrates the environment bootstrap pipeline: banner,
// identity diagnostics, toolchain upgrade, manifest install, importability
// verification, and completion banner, in strict sequence.
//
// Only two steps abort the run: the toolchain upgrade and the manifest
// install when a manifest is present. Everything else is best-effort
// diagnostics and continues regardless of individual failures.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/j4ng5y/envboot/internal/config"
	"github.com/j4ng5y/envboot/internal/diagnostics"
	"github.com/j4ng5y/envboot/internal/probe"
	"github.com/j4ng5y/envboot/internal/report"
	"github.com/j4ng5y/envboot/internal/runner"
	"github.com/j4ng5y/envboot/internal/toolchain"
)

// Status of a pipeline run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Step names as they appear in run reports.
const (
	StepDiagnostics  = "diagnostics"
	StepToolchain    = "toolchain_upgrade"
	StepInstall      = "manifest_install"
	StepVerification = "verification"
)

// Step statuses as they appear in run reports.
const (
	StepOK      = "ok"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// AbortError wraps a fatal step failure and carries the exit code the
// process should terminate with.
type AbortError struct {
	Step string
	Code int
	Err  error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("bootstrap aborted at %s: %v", e.Step, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code a failed run should terminate with: the
// failing command's own code when one is available, 1 otherwise. Returns 0
// for a nil error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var abort *AbortError
	if errors.As(err, &abort) {
		return abort.Code
	}
	return 1
}

// Pipeline sequences the bootstrap steps. Create one per run.
type Pipeline struct {
	cfg         *config.Config
	out         io.Writer
	logger      *slog.Logger
	runner      runner.Runner
	installer   *toolchain.Installer
	prober      *diagnostics.Prober
	verifier    *probe.Verifier
	status      Status
	skipInstall bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOutput redirects the pipeline's progress output (default os.Stdout).
func WithOutput(out io.Writer) Option {
	return func(p *Pipeline) {
		p.out = out
	}
}

// WithRunner overrides the command runner, used by tests to substitute a
// fake executor.
func WithRunner(r runner.Runner) Option {
	return func(p *Pipeline) {
		p.runner = r
	}
}

// WithSkipInstall disables the environment-mutating steps, leaving only
// diagnostics and verification.
func WithSkipInstall(skip bool) Option {
	return func(p *Pipeline) {
		p.skipInstall = skip
	}
}

// NewPipeline creates a new Pipeline for the given configuration.
//
// Parameters:
//   - cfg: Validated configuration
//   - logger: Structured logger for run events
//   - opts: Optional overrides
//
// Returns a Pipeline ready to Run.
func NewPipeline(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	p := &Pipeline{
		cfg:    cfg,
		out:    os.Stdout,
		logger: logger,
		status: StatusPending,
	}
	for _, opt := range opts {
		opt(p)
	}

	// Worker packages log through zerolog on stderr, alongside the
	// pipeline's slog events.
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if p.runner == nil {
		p.runner = runner.NewCommandRunner(
			time.Duration(cfg.CommandTimeout)*time.Second,
			cfg.SpawnRate,
			zl,
		)
	}

	p.prober = diagnostics.NewProber(p.runner, cfg.PythonBin, p.out, zl)
	p.installer = toolchain.NewInstaller(p.runner, cfg.PythonBin, p.out, zl)
	p.verifier = probe.NewVerifier(p.runner, cfg.PythonBin, p.out, zl)

	return p, nil
}

// Status returns the current run status.
func (p *Pipeline) Status() Status {
	return p.status
}

// Run executes the bootstrap sequence. It blocks until every step has
// finished or a fatal step has failed.
//
// Returns nil when all fatal-checked steps succeeded; otherwise an
// *AbortError carrying the failing command's exit code.
func (p *Pipeline) Run(ctx context.Context) error {
	p.status = StatusRunning
	started := time.Now()

	rep := &report.RunReport{
		VersionLabel: p.cfg.VersionLabel,
		StartedAt:    started,
	}

	fmt.Fprintln(p.out, "=== envboot: Python environment bootstrap ===")
	fmt.Fprintf(p.out, "Python version label: %s\n", p.cfg.VersionLabel)

	p.logger.Info("Bootstrap started",
		"version_label", p.cfg.VersionLabel,
		"python_bin", p.cfg.PythonBin)

	// Best-effort identity diagnostics; never aborts.
	rep.Identity = p.prober.Report(ctx)
	rep.Steps = append(rep.Steps, report.StepResult{Name: StepDiagnostics, Status: StepOK})

	if p.skipInstall {
		rep.Steps = append(rep.Steps,
			report.StepResult{Name: StepToolchain, Status: StepSkipped},
			report.StepResult{Name: StepInstall, Status: StepSkipped})
		p.logger.Info("Install steps skipped")
	} else {
		// Toolchain upgrade is fatal: later installs depend on it.
		if err := p.installer.UpgradeToolchain(ctx); err != nil {
			rep.Steps = append(rep.Steps, report.StepResult{Name: StepToolchain, Status: StepFailed})
			return p.abort(rep, started, StepToolchain, err)
		}
		rep.Steps = append(rep.Steps, report.StepResult{Name: StepToolchain, Status: StepOK})

		installed, err := p.installer.InstallRequirements(ctx, p.cfg.RequirementsFile)
		if err != nil {
			rep.Steps = append(rep.Steps, report.StepResult{Name: StepInstall, Status: StepFailed})
			return p.abort(rep, started, StepInstall, err)
		}
		installStatus := StepOK
		if !installed {
			installStatus = StepSkipped
		}
		rep.Steps = append(rep.Steps, report.StepResult{Name: StepInstall, Status: installStatus})
	}

	// Verification is informational only.
	rep.Modules = p.verifier.Verify(ctx, p.cfg.ProbeModules)
	rep.Steps = append(rep.Steps, report.StepResult{Name: StepVerification, Status: StepOK})

	fmt.Fprintln(p.out, "=== bootstrap complete ===")

	p.status = StatusCompleted
	rep.Status = string(StatusCompleted)
	rep.FinishedAt = time.Now()
	p.writeReports(rep)

	p.logger.Info("Bootstrap complete", "duration", time.Since(started).String())
	return nil
}

// abort finalizes a failed run: writes whatever report material was
// gathered and wraps the failure with the exit code to propagate.
func (p *Pipeline) abort(rep *report.RunReport, started time.Time, step string, err error) error {
	p.status = StatusAborted
	rep.Status = string(StatusAborted)
	rep.FinishedAt = time.Now()
	p.writeReports(rep)

	p.logger.Error("Bootstrap aborted",
		"step", step,
		"error", err,
		"duration", time.Since(started).String())

	return &AbortError{
		Step: step,
		Code: runner.ExitCode(err, 1),
		Err:  err,
	}
}

// writeReports persists the run report when a report directory is
// configured. Report failures are logged and swallowed.
func (p *Pipeline) writeReports(rep *report.RunReport) {
	if p.cfg.ReportDir == "" {
		return
	}

	w, err := report.NewWriter(p.cfg.ReportDir, p.logger)
	if err != nil {
		p.logger.Warn("Skipping run report", "error", err)
		return
	}
	if err := w.WriteJSON(rep); err != nil {
		p.logger.Warn("Failed to write audit report", "error", err)
	}
	if err := w.WriteMarkdown(rep, p.cfg.HTMLReport); err != nil {
		p.logger.Warn("Failed to write run summary", "error", err)
	}
}
