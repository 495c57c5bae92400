package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/j4ng5y/envboot/internal/config"
	"github.com/j4ng5y/envboot/internal/report"
	"github.com/j4ng5y/envboot/internal/runner"
)

// fakeRunner simulates the external commands a bootstrap run invokes. It
// classifies invocations by their arguments: version probes and module
// probes arrive via Run, install steps via RunStreaming.
type fakeRunner struct {
	upgradeErr error
	installErr error
	importable map[string]bool
	streamed   [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	if name == "uname" {
		return runner.Result{Stdout: "Linux ci-runner 6.8.0 x86_64 GNU/Linux"}, nil
	}
	for _, a := range args {
		if a == "-c" {
			// Module probe; the module name is the trailing argument.
			module := args[len(args)-1]
			if f.importable[module] {
				return runner.Result{}, nil
			}
			return runner.Result{ExitCode: 1}, fmt.Errorf("module not found")
		}
		if a == "--version" {
			return runner.Result{Stdout: "Python 3.11.9"}, nil
		}
	}
	return runner.Result{}, nil
}

func (f *fakeRunner) RunStreaming(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	f.streamed = append(f.streamed, append([]string{name}, args...))
	for _, a := range args {
		if a == "--upgrade" {
			return f.upgradeErr
		}
		if a == "-r" {
			return f.installErr
		}
	}
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	// Point the manifest into a fresh directory so the host workspace never
	// leaks into scenarios.
	cfg.RequirementsFile = filepath.Join(t.TempDir(), "requirements.txt")
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeManifest(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("numpy==1.26.4\n"), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, fake *fakeRunner, out *bytes.Buffer, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithOutput(out), WithRunner(fake)}, opts...)
	p, err := NewPipeline(cfg, discardLogger(), opts...)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p
}

func countReportLines(out string) int {
	return strings.Count(out, " : OK") + strings.Count(out, " : MISS")
}

func TestRunManifestAbsent(t *testing.T) {
	cfg := testConfig(t)
	fake := &fakeRunner{importable: map[string]bool{"numpy": true, "pandas": true}}
	var out bytes.Buffer

	p := newTestPipeline(t, cfg, fake, &out)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	output := out.String()

	if got := strings.Count(output, "WARNING"); got != 1 {
		t.Errorf("expected exactly 1 warning line, got %d", got)
	}
	if !strings.Contains(output, "not found") {
		t.Error("expected manifest not-found warning")
	}

	// One report line per default probe module.
	if got := countReportLines(output); got != len(config.DefaultProbeModules()) {
		t.Errorf("expected %d report lines, got %d", len(config.DefaultProbeModules()), got)
	}

	if !strings.Contains(output, "=== bootstrap complete ===") {
		t.Error("expected completion banner")
	}
	if p.Status() != StatusCompleted {
		t.Errorf("expected status completed, got %s", p.Status())
	}
	if ExitCode(nil) != 0 {
		t.Errorf("expected exit code 0 for nil error")
	}
}

func TestRunEchoesVersionLabel(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{
			name:  "default label",
			label: "",
			want:  "Python version label: 3.11",
		},
		{
			name:  "explicit label echoed verbatim",
			label: "3.12",
			want:  "Python version label: 3.12",
		},
		{
			name:  "label is not validated",
			label: "anything-goes",
			want:  "Python version label: anything-goes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tt.label != "" {
				cfg.VersionLabel = tt.label
			}

			fake := &fakeRunner{}
			var out bytes.Buffer
			p := newTestPipeline(t, cfg, fake, &out)

			if err := p.Run(context.Background()); err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("expected banner to contain %q, got %q", tt.want, out.String())
			}
		})
	}
}

func TestRunToolchainFailureAborts(t *testing.T) {
	// Harvest a real exit error so the pipeline can propagate its code.
	exitErr := exec.Command("sh", "-c", "exit 7").Run()
	if exitErr == nil {
		t.Fatal("expected exit error from sh")
	}

	cfg := testConfig(t)
	writeManifest(t, cfg.RequirementsFile)

	fake := &fakeRunner{upgradeErr: fmt.Errorf("upgrade failed: %w", exitErr)}
	var out bytes.Buffer
	p := newTestPipeline(t, cfg, fake, &out)

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failing toolchain upgrade")
	}

	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %T", err)
	}
	if abort.Step != StepToolchain {
		t.Errorf("expected abort at %s, got %s", StepToolchain, abort.Step)
	}
	if ExitCode(err) != 7 {
		t.Errorf("expected propagated exit code 7, got %d", ExitCode(err))
	}

	// The run aborted before the install and the verification pass.
	for _, call := range fake.streamed {
		if strings.Contains(strings.Join(call, " "), "-r") {
			t.Error("manifest install ran after fatal toolchain failure")
		}
	}
	if got := countReportLines(out.String()); got != 0 {
		t.Errorf("expected no report lines after abort, got %d", got)
	}
	if strings.Contains(out.String(), "=== bootstrap complete ===") {
		t.Error("completion banner printed for aborted run")
	}
	if p.Status() != StatusAborted {
		t.Errorf("expected status aborted, got %s", p.Status())
	}
}

func TestRunInstallFailureAborts(t *testing.T) {
	cfg := testConfig(t)
	writeManifest(t, cfg.RequirementsFile)

	fake := &fakeRunner{installErr: fmt.Errorf("could not find a version")}
	var out bytes.Buffer
	p := newTestPipeline(t, cfg, fake, &out)

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failing install")
	}

	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %T", err)
	}
	if abort.Step != StepInstall {
		t.Errorf("expected abort at %s, got %s", StepInstall, abort.Step)
	}
	// No command exit code available, so the generic failure code is used.
	if ExitCode(err) != 1 {
		t.Errorf("expected exit code 1, got %d", ExitCode(err))
	}

	if got := countReportLines(out.String()); got != 0 {
		t.Errorf("verification ran after fatal install failure: %d lines", got)
	}
}

func TestRunSkipInstall(t *testing.T) {
	cfg := testConfig(t)
	writeManifest(t, cfg.RequirementsFile)

	fake := &fakeRunner{importable: map[string]bool{"numpy": true}}
	var out bytes.Buffer
	p := newTestPipeline(t, cfg, fake, &out, WithSkipInstall(true))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(fake.streamed) != 0 {
		t.Errorf("expected no install commands, got %v", fake.streamed)
	}
	if got := countReportLines(out.String()); got != len(config.DefaultProbeModules()) {
		t.Errorf("expected verification to run, got %d report lines", got)
	}
}

func TestRunWritesReports(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReportDir = filepath.Join(t.TempDir(), "reports")

	fake := &fakeRunner{importable: map[string]bool{"numpy": true}}
	var out bytes.Buffer
	p := newTestPipeline(t, cfg, fake, &out)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.ReportDir, "bootstrap_audit.json"))
	if err != nil {
		t.Fatalf("audit report not written: %v", err)
	}

	var rep report.RunReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("audit report is not valid JSON: %v", err)
	}

	if rep.Status != string(StatusCompleted) {
		t.Errorf("expected completed status in report, got %s", rep.Status)
	}
	if rep.VersionLabel != "3.11" {
		t.Errorf("expected version label in report, got %s", rep.VersionLabel)
	}
	if len(rep.Modules) != len(config.DefaultProbeModules()) {
		t.Errorf("expected %d module statuses, got %d", len(config.DefaultProbeModules()), len(rep.Modules))
	}

	if _, err := os.Stat(filepath.Join(cfg.ReportDir, "bootstrap_report.md")); err != nil {
		t.Errorf("markdown report not written: %v", err)
	}
}

func TestNewPipelineValidation(t *testing.T) {
	if _, err := NewPipeline(nil, discardLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewPipeline(config.NewConfig(), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "nil error",
			err:  nil,
			want: 0,
		},
		{
			name: "abort error carries code",
			err:  &AbortError{Step: StepToolchain, Code: 5, Err: fmt.Errorf("boom")},
			want: 5,
		},
		{
			name: "wrapped abort error",
			err:  fmt.Errorf("failed: %w", &AbortError{Step: StepInstall, Code: 2, Err: fmt.Errorf("boom")}),
			want: 2,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
