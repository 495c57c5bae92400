// Package report persists run reports for CI artifact collection: a JSON
// audit file, a Markdown summary, and optionally an HTML rendering of that
// summary. Report writing is best-effort diagnostics; failures are logged
// and never fail the bootstrap run.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/j4ng5y/envboot/internal/diagnostics"
	"github.com/j4ng5y/envboot/internal/probe"
)

const (
	// reportVersion is the current audit report format version
	reportVersion = "1.0"
	// reportDirPermissions is the permissions for the report directory
	reportDirPermissions = 0755
	// reportFilePermissions is the permissions for report files
	reportFilePermissions = 0644

	auditFileName    = "bootstrap_audit.json"
	markdownFileName = "bootstrap_report.md"
	htmlFileName     = "bootstrap_report.html"
)

// StepResult records the outcome of one pipeline step.
type StepResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok, failed, skipped
}

// RunReport represents one bootstrap run with metadata, mirroring what the
// pipeline printed to stdout.
type RunReport struct {
	Version      string               `json:"version"`
	VersionLabel string               `json:"version_label"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
	Status       string               `json:"status"` // completed, aborted
	Identity     diagnostics.Identity `json:"identity"`
	Steps        []StepResult         `json:"steps"`
	Modules      []probe.ModuleStatus `json:"modules"`
}

// Writer handles writing run reports to disk.
type Writer struct {
	baseDir string
	logger  *slog.Logger
}

// NewWriter creates a new report writer and ensures the report directory
// exists.
func NewWriter(baseDir string, logger *slog.Logger) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("report base directory cannot be empty")
	}

	w := &Writer{
		baseDir: baseDir,
		logger:  logger,
	}

	if err := os.MkdirAll(baseDir, reportDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to ensure report directory: %w", err)
	}

	return w, nil
}

// WriteJSON persists the audit report atomically (temp file + rename), so a
// crashed run never leaves a truncated report behind for the CI collector.
func (w *Writer) WriteJSON(report *RunReport) error {
	report.Version = reportVersion

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit report: %w", err)
	}

	path := filepath.Join(w.baseDir, auditFileName)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, reportFilePermissions); err != nil {
		return fmt.Errorf("failed to write temp audit file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move audit file into place: %w", err)
	}

	w.logger.Info("Audit report written", "path", path)
	return nil
}

// WriteMarkdown renders the run summary as Markdown and writes it next to
// the audit file. When renderHTML is set, the summary is additionally
// converted to HTML with goldmark for CI artifact pages.
func (w *Writer) WriteMarkdown(report *RunReport, renderHTML bool) error {
	md := RenderMarkdown(report)

	mdPath := filepath.Join(w.baseDir, markdownFileName)
	if err := os.WriteFile(mdPath, []byte(md), reportFilePermissions); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}
	w.logger.Info("Markdown report written", "path", mdPath)

	if !renderHTML {
		return nil
	}

	var html strings.Builder
	if err := goldmark.New().Convert([]byte(md), &html); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}

	htmlPath := filepath.Join(w.baseDir, htmlFileName)
	if err := os.WriteFile(htmlPath, []byte(html.String()), reportFilePermissions); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}
	w.logger.Info("HTML report written", "path", htmlPath)

	return nil
}

// RenderMarkdown builds the Markdown run summary.
func RenderMarkdown(report *RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Bootstrap run %s\n\n", report.Status)
	fmt.Fprintf(&b, "Python version label: %s\n\n", report.VersionLabel)
	fmt.Fprintf(&b, "Started: %s\n\n", report.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Finished: %s\n\n", report.FinishedAt.UTC().Format(time.RFC3339))

	b.WriteString("## Identity\n\n")
	fmt.Fprintf(&b, "- python: %s\n", report.Identity.Python)
	fmt.Fprintf(&b, "- pip: %s\n", report.Identity.Pip)
	fmt.Fprintf(&b, "- host: %s\n", report.Identity.Host)
	b.WriteString("\n")

	b.WriteString("## Steps\n\n")
	for _, step := range report.Steps {
		fmt.Fprintf(&b, "- %s: %s\n", step.Name, step.Status)
	}
	b.WriteString("\n")

	b.WriteString("## Modules\n\n")
	for _, m := range report.Modules {
		fmt.Fprintf(&b, "- %s: %s\n", m.Name, m.Status())
	}

	return b.String()
}
