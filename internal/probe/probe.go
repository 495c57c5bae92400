// Package probe implements the verification pass: resolving whether each
// configured module name is importable in the target interpreter and
// printing a fixed-width OK/MISS report line per name. The pass is purely
// informational and never fails the run.
package probe

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/j4ng5y/envboot/internal/runner"
)

// reportNameWidth is the fixed width of the module name field in report
// lines. Names are left-padded and truncated to exactly this width.
const reportNameWidth = 12

// Report statuses as they appear on report lines.
const (
	StatusOK   = "OK"
	StatusMiss = "MISS"
)

// findSpecScript resolves importability without importing the module, so a
// probe never executes package import side effects. The exit code carries
// the answer: 0 importable, 1 not.
const findSpecScript = "import importlib.util, sys; sys.exit(0 if importlib.util.find_spec(sys.argv[1]) is not None else 1)"

// ModuleStatus records the probe outcome for one module name.
type ModuleStatus struct {
	Name       string `json:"name"`
	Importable bool   `json:"importable"`
}

// Status returns the report status string for this outcome.
func (m ModuleStatus) Status() string {
	if m.Importable {
		return StatusOK
	}
	return StatusMiss
}

// Verifier runs the importability probes.
type Verifier struct {
	runner    runner.Runner
	pythonBin string
	out       io.Writer
	logger    zerolog.Logger
}

// NewVerifier creates a new Verifier.
//
// Parameters:
//   - r: Runner used to invoke the interpreter per probe
//   - pythonBin: Python interpreter whose module path is probed
//   - out: Destination for the report lines
//   - logger: The zerolog logger for structured logging
func NewVerifier(r runner.Runner, pythonBin string, out io.Writer, logger zerolog.Logger) *Verifier {
	return &Verifier{
		runner:    r,
		pythonBin: pythonBin,
		out:       out,
		logger:    logger,
	}
}

// Verify probes each module name in order and prints one report line per
// name. Individual probe failures (including an unusable interpreter) are
// reported as MISS; the pass itself always completes.
func (v *Verifier) Verify(ctx context.Context, modules []string) []ModuleStatus {
	statuses := make([]ModuleStatus, 0, len(modules))

	for _, name := range modules {
		status := ModuleStatus{
			Name:       name,
			Importable: v.importable(ctx, name),
		}
		statuses = append(statuses, status)

		fmt.Fprintln(v.out, FormatReportLine(status))
	}

	v.logger.Info().
		Int("probed", len(statuses)).
		Int("importable", countImportable(statuses)).
		Msg("Verification pass complete")

	return statuses
}

// importable resolves one module name; any runner error counts as MISS.
func (v *Verifier) importable(ctx context.Context, name string) bool {
	_, err := v.runner.Run(ctx, v.pythonBin, "-c", findSpecScript, name)
	if err != nil {
		v.logger.Debug().
			Err(err).
			Str("module", name).
			Msg("Module not importable")
		return false
	}
	return true
}

// FormatReportLine renders one report line in the fixed format
// `<name> : OK` / `<name> : MISS` with the name field left-padded and
// truncated to 12 characters.
func FormatReportLine(status ModuleStatus) string {
	return fmt.Sprintf("%*.*s : %s", reportNameWidth, reportNameWidth, status.Name, status.Status())
}

func countImportable(statuses []ModuleStatus) int {
	n := 0
	for _, s := range statuses {
		if s.Importable {
			n++
		}
	}
	return n
}
