// envboot bootstraps a Python environment on a CI runner.
//
// It prints interpreter and host identity, upgrades the packaging toolchain,
// installs dependencies from requirements.txt when present, and reports
// which of the configured probe modules resolve as importable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/j4ng5y/envboot/internal/bootstrap"
	"github.com/j4ng5y/envboot/internal/config"
	"github.com/j4ng5y/envboot/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFile       string
	logLevel         string
	pythonBin        string
	requirementsFile string
	probeModules     string
	reportDir        string
	htmlReport       bool
	skipInstall      bool
	showVersion      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "envboot [python-version]",
		Short: "Bootstrap a Python environment for a CI runner",
		Long: `envboot prepares a Python environment on a CI runner.

It runs a fixed sequence: print interpreter and host identity, upgrade the
packaging toolchain (pip, setuptools, wheel), install dependencies from
requirements.txt when it exists, then probe a configured list of module
names and report OK or MISS per name.

The optional positional argument is a version label echoed in the banner
(default: 3.11); interpreter selection itself is left to the environment.`,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runBootstrap,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (optional)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&pythonBin, "python", "", "Python interpreter to use (default: python3)")
	rootCmd.Flags().StringVar(&requirementsFile, "requirements", "", "Dependency manifest path (default: requirements.txt)")
	rootCmd.Flags().StringVar(&probeModules, "probe-modules", "", "Comma-separated module names to verify (overrides config)")
	rootCmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory for run reports (default: none)")
	rootCmd.Flags().BoolVar(&htmlReport, "html-report", false, "Also render the run summary to HTML")
	rootCmd.Flags().BoolVar(&skipInstall, "skip-install", false, "Skip toolchain upgrade and dependency install")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(bootstrap.ExitCode(err))
	}
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("envboot\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit:  %s\n", commit)
		fmt.Printf("Built:   %s\n", date)
		return nil
	}

	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log_level"] = logLevel
	}
	if pythonBin != "" {
		flags["python_bin"] = pythonBin
	}
	if requirementsFile != "" {
		flags["requirements_file"] = requirementsFile
	}
	if probeModules != "" {
		flags["probe_modules"] = config.SplitProbeModules(probeModules)
	}
	if reportDir != "" {
		flags["report_dir"] = reportDir
	}
	if htmlReport {
		flags["html_report"] = true
	}
	if len(args) == 1 {
		flags["version_label"] = args[0]
	}

	cfg, err := config.LoadWithFlags(configFile, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log.Info("Starting envboot",
		"version", version,
		"commit", commit,
		"date", date)

	pipeline, err := bootstrap.NewPipeline(cfg, log,
		bootstrap.WithSkipInstall(skipInstall))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// SIGINT/SIGTERM cancel the in-flight external command and abort the run.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := pipeline.Run(ctx); err != nil {
		log.Error("Bootstrap failed", "error", err)
		return err
	}

	return nil
}
