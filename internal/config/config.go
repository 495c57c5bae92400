// Package config provides configuration management for envboot.
// It supports loading configuration from multiple sources: command-line flags,
// config files, and environment variables, with proper precedence handling.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// moduleNamePattern matches dotted Python module paths. Probe names end up
// as interpreter arguments, so anything outside this set is rejected at
// validation time.
var moduleNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Config holds all configuration settings for envboot.
// It covers logging, interpreter selection, the dependency manifest location,
// the importability probe list, and run-report output.
type Config struct {
	// Logging settings
	LogLevel string // Log level: debug, info, warn, error (default: info)

	// Interpreter settings
	PythonBin    string // Python interpreter invoked for every step (default: python3)
	VersionLabel string // Version label echoed in the banner, never validated (default: 3.11)

	// Install settings
	RequirementsFile string // Dependency manifest path, relative to the working directory (default: requirements.txt)
	CommandTimeout   int    // Timeout per external command in seconds (default: 600)

	// Verification settings
	ProbeModules []string // Module names checked for importability after install
	SpawnRate    int      // Probe subprocess spawns allowed per second (default: 8)

	// Report settings
	ReportDir  string // Directory for run reports (default: empty, no reports written)
	HTMLReport bool   // Render the Markdown run summary to HTML as well (default: false)
}

// DefaultProbeModules returns the default probe list: the data/ML package set
// the CI images are expected to carry. The list is configuration, not a
// behavioral contract; override it via probe_modules.
func DefaultProbeModules() []string {
	return []string{
		"numpy",
		"pandas",
		"scipy",
		"sklearn",
		"matplotlib",
		"statsmodels",
		"lightgbm",
		"xgboost",
		"pyarrow",
		"yfinance",
		"requests",
	}
}

// NewConfig creates a new Config with default values for all optional
// parameters, so envboot runs without any explicit configuration.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",

		PythonBin:    "python3",
		VersionLabel: "3.11",

		RequirementsFile: "requirements.txt",
		CommandTimeout:   600,

		ProbeModules: DefaultProbeModules(),
		SpawnRate:    8,

		ReportDir:  "",
		HTMLReport: false,
	}
}

// Load loads configuration from environment variables with defaults.
// Returns a Config with values from environment variables or defaults.
func Load() (*Config, error) {
	cfg := NewConfig()

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file, with environment
// variables as fallback, and defaults as final fallback.
// The precedence order is: config file > environment variables > defaults.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := NewConfig()

	loadFromEnv(cfg)

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyFileValues(cfg, v)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithFlags loads configuration from command-line flags, config file,
// environment variables, and defaults.
// The precedence order is: flags > config file > environment variables > defaults.
func LoadWithFlags(configPath string, flags map[string]interface{}) (*Config, error) {
	cfg := NewConfig()

	loadFromEnv(cfg)

	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		applyFileValues(cfg, v)
	}

	// Flags are the highest precedence source.
	if val, ok := flags["log_level"]; ok && val != nil {
		if strVal, ok := val.(string); ok {
			cfg.LogLevel = strVal
		}
	}
	if val, ok := flags["python_bin"]; ok && val != nil {
		if strVal, ok := val.(string); ok {
			cfg.PythonBin = strVal
		}
	}
	if val, ok := flags["version_label"]; ok && val != nil {
		if strVal, ok := val.(string); ok {
			cfg.VersionLabel = strVal
		}
	}
	if val, ok := flags["requirements_file"]; ok && val != nil {
		if strVal, ok := val.(string); ok {
			cfg.RequirementsFile = strVal
		}
	}
	if val, ok := flags["command_timeout"]; ok && val != nil {
		if intVal, ok := val.(int); ok {
			cfg.CommandTimeout = intVal
		}
	}
	if val, ok := flags["probe_modules"]; ok && val != nil {
		if listVal, ok := val.([]string); ok {
			cfg.ProbeModules = listVal
		}
	}
	if val, ok := flags["spawn_rate"]; ok && val != nil {
		if intVal, ok := val.(int); ok {
			cfg.SpawnRate = intVal
		}
	}
	if val, ok := flags["report_dir"]; ok && val != nil {
		if strVal, ok := val.(string); ok {
			cfg.ReportDir = strVal
		}
	}
	if val, ok := flags["html_report"]; ok && val != nil {
		if boolVal, ok := val.(bool); ok {
			cfg.HTMLReport = boolVal
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFileValues overlays config file values onto cfg, only for keys that
// are actually present in the file.
func applyFileValues(cfg *Config, v *viper.Viper) {
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("python_bin") {
		cfg.PythonBin = v.GetString("python_bin")
	}
	if v.IsSet("version_label") {
		cfg.VersionLabel = v.GetString("version_label")
	}
	if v.IsSet("requirements_file") {
		cfg.RequirementsFile = v.GetString("requirements_file")
	}
	if v.IsSet("command_timeout") {
		cfg.CommandTimeout = v.GetInt("command_timeout")
	}
	if v.IsSet("probe_modules") {
		cfg.ProbeModules = v.GetStringSlice("probe_modules")
	}
	if v.IsSet("spawn_rate") {
		cfg.SpawnRate = v.GetInt("spawn_rate")
	}
	if v.IsSet("report_dir") {
		cfg.ReportDir = v.GetString("report_dir")
	}
	if v.IsSet("html_report") {
		cfg.HTMLReport = v.GetBool("html_report")
	}
}

// loadFromEnv loads configuration from environment variables into the provided Config
func loadFromEnv(cfg *Config) {
	if val := os.Getenv("ENVBOOT_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := os.Getenv("ENVBOOT_PYTHON_BIN"); val != "" {
		cfg.PythonBin = val
	}
	if val := os.Getenv("ENVBOOT_VERSION_LABEL"); val != "" {
		cfg.VersionLabel = val
	}
	if val := os.Getenv("ENVBOOT_REQUIREMENTS_FILE"); val != "" {
		cfg.RequirementsFile = val
	}
	if val := os.Getenv("ENVBOOT_COMMAND_TIMEOUT"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.CommandTimeout = intVal
		}
	}
	if val := os.Getenv("ENVBOOT_PROBE_MODULES"); val != "" {
		cfg.ProbeModules = SplitProbeModules(val)
	}
	if val := os.Getenv("ENVBOOT_SPAWN_RATE"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.SpawnRate = intVal
		}
	}
	if val := os.Getenv("ENVBOOT_REPORT_DIR"); val != "" {
		cfg.ReportDir = val
	}
	if val := os.Getenv("ENVBOOT_HTML_REPORT"); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			cfg.HTMLReport = boolVal
		}
	}
}

// SplitProbeModules splits a comma-separated probe list into trimmed names.
// Empty elements are dropped.
func SplitProbeModules(val string) []string {
	parts := strings.Split(val, ",")
	modules := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			modules = append(modules, p)
		}
	}
	return modules
}

// Validate validates all configuration values and returns descriptive errors
// for any invalid settings. This should be called after loading configuration
// so a run never starts with invalid configuration.
func (c *Config) Validate() error {
	var errors []string

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel))
	}

	if c.PythonBin == "" {
		errors = append(errors, "python_bin cannot be empty")
	}

	if c.RequirementsFile == "" {
		errors = append(errors, "requirements_file cannot be empty")
	}

	if c.CommandTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("command_timeout must be positive, got: %d", c.CommandTimeout))
	}

	if c.SpawnRate <= 0 {
		errors = append(errors, fmt.Sprintf("spawn_rate must be positive, got: %d", c.SpawnRate))
	}

	if len(c.ProbeModules) == 0 {
		errors = append(errors, "probe_modules cannot be empty")
	}
	for _, m := range c.ProbeModules {
		if !moduleNamePattern.MatchString(m) {
			errors = append(errors, fmt.Sprintf("invalid probe module name: %q", m))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
