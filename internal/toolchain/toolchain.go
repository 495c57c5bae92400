// Package toolchain performs the environment-mutating steps of a bootstrap
// run: upgrading the packaging toolchain and installing declared
// dependencies from the manifest. Failures here are fatal, since every later
// step depends on a working toolchain and a populated environment.
package toolchain

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/j4ng5y/envboot/internal/runner"
)

// toolchainPackages are upgraded before any dependency install: the
// installer itself, the build-configuration helper, and the wheel builder.
var toolchainPackages = []string{"pip", "setuptools", "wheel"}

// Installer drives pip through the configured interpreter.
type Installer struct {
	runner    runner.Runner
	pythonBin string
	out       io.Writer
	logger    zerolog.Logger
}

// NewInstaller creates a new Installer.
//
// Parameters:
//   - r: Runner used to invoke pip
//   - pythonBin: Python interpreter whose environment is mutated
//   - out: Destination for progress lines and streamed pip output
//   - logger: The zerolog logger for structured logging
func NewInstaller(r runner.Runner, pythonBin string, out io.Writer, logger zerolog.Logger) *Installer {
	return &Installer{
		runner:    r,
		pythonBin: pythonBin,
		out:       out,
		logger:    logger,
	}
}

// UpgradeToolchain upgrades pip, setuptools, and wheel to their latest
// versions. Failures keep the runner error in the chain so the caller can
// propagate the command's exit code.
func (i *Installer) UpgradeToolchain(ctx context.Context) error {
	fmt.Fprintln(i.out, "Upgrading packaging toolchain (pip, setuptools, wheel)...")

	args := append([]string{"-m", "pip", "install", "--upgrade"}, toolchainPackages...)
	if err := i.runner.RunStreaming(ctx, i.out, i.out, i.pythonBin, args...); err != nil {
		i.logger.Error().
			Err(err).
			Msg("Toolchain upgrade failed")
		return fmt.Errorf("toolchain upgrade failed: %w", err)
	}

	i.logger.Info().Msg("Toolchain upgrade complete")
	return nil
}

// InstallRequirements installs dependencies from the manifest at path when
// it exists.
//
// Returns (true, nil) after a successful install, (false, nil) when the
// manifest is absent (a warning line is printed, the run continues), and a
// non-nil error when the manifest exists but the install fails.
func (i *Installer) InstallRequirements(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(i.out, "WARNING: %s not found, skipping dependency install\n", path)
			i.logger.Warn().
				Str("manifest", path).
				Msg("Dependency manifest not found, skipping install")
			return false, nil
		}
		// Unreadable manifest is treated like a failed install: later steps
		// cannot trust the environment.
		return false, fmt.Errorf("failed to stat manifest %s: %w", path, err)
	}

	fmt.Fprintf(i.out, "Installing dependencies from %s...\n", path)

	if err := i.runner.RunStreaming(ctx, i.out, i.out, i.pythonBin, "-m", "pip", "install", "-r", path); err != nil {
		i.logger.Error().
			Err(err).
			Str("manifest", path).
			Msg("Dependency install failed")
		return false, fmt.Errorf("dependency install from %s failed: %w", path, err)
	}

	i.logger.Info().
		Str("manifest", path).
		Msg("Dependency install complete")
	return true, nil
}
