// Package diagnostics reports interpreter and host identity at the start of
// a bootstrap run. Every probe is best effort: a failing probe is logged,
// reported as unavailable, and never aborts the run.
package diagnostics

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/j4ng5y/envboot/internal/runner"
)

// unavailable is printed in place of a probe result that could not be read.
const unavailable = "(unavailable)"

// Identity holds the resolved identity lines from the diagnostic pass.
// Fields hold the unavailable marker when the underlying probe failed.
type Identity struct {
	Python string `json:"python"`
	Pip    string `json:"pip"`
	Host   string `json:"host"`
}

// Prober runs the best-effort identity probes.
type Prober struct {
	runner    runner.Runner
	pythonBin string
	out       io.Writer
	logger    zerolog.Logger
}

// NewProber creates a new Prober.
//
// Parameters:
//   - r: Runner used to invoke the external identity commands
//   - pythonBin: Python interpreter to query
//   - out: Destination for the human-readable identity lines
//   - logger: The zerolog logger for structured logging
func NewProber(r runner.Runner, pythonBin string, out io.Writer, logger zerolog.Logger) *Prober {
	return &Prober{
		runner:    r,
		pythonBin: pythonBin,
		out:       out,
		logger:    logger,
	}
}

// Report queries the interpreter version, the installer version, and the
// host identification string, printing one line per probe. Probe failures
// are swallowed; the returned Identity records whatever was readable.
func (p *Prober) Report(ctx context.Context) Identity {
	id := Identity{
		Python: p.probe(ctx, "python", p.pythonBin, "--version"),
		Pip:    p.probe(ctx, "pip", p.pythonBin, "-m", "pip", "--version"),
		Host:   p.probe(ctx, "host", "uname", "-a"),
	}

	fmt.Fprintf(p.out, "python : %s\n", id.Python)
	fmt.Fprintf(p.out, "pip    : %s\n", id.Pip)
	fmt.Fprintf(p.out, "host   : %s\n", id.Host)

	return id
}

// probe runs a single identity command and returns its first output line.
// Some interpreters report --version on stderr, so both streams are checked.
func (p *Prober) probe(ctx context.Context, what, name string, args ...string) string {
	res, err := p.runner.Run(ctx, name, args...)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("probe", what).
			Str("command", name).
			Msg("Identity probe failed, continuing")
		return unavailable
	}

	out := firstLine(res.Stdout)
	if out == "" {
		out = firstLine(res.Stderr)
	}
	if out == "" {
		return unavailable
	}
	return out
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
