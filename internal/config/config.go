// Package config provides configuration types and defaults for phaseguide.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/phaseguide/internal/log"
)

// Config holds all configuration options for phaseguide.
type Config struct {
	// ProjectPath is the project the guide operates on. Empty means the
	// directory the command was started from.
	ProjectPath     string          `mapstructure:"project_path"`
	DefaultWorkflow string          `mapstructure:"default_workflow"`
	Debug           bool            `mapstructure:"debug"`
	LogPath         string          `mapstructure:"log_path"`
	Workflows       WorkflowsConfig `mapstructure:"workflows"`
	Database        DatabaseConfig  `mapstructure:"database"`
	Documents       DocumentsConfig `mapstructure:"documents"`
	Tracing         TracingConfig   `mapstructure:"tracing"`
}

// WorkflowsConfig controls workflow discovery.
type WorkflowsConfig struct {
	// Domains is an allow-list of bundled workflow domains (e.g. "code",
	// "architecture"). Empty advertises every bundled workflow. Project-local
	// workflows are never filtered.
	Domains []string `mapstructure:"domains"`

	// ResourceDir overrides the bundled workflow location.
	ResourceDir string `mapstructure:"resource_dir"`

	// CacheTTL bounds how long a parsed workflow document stays cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DatabaseConfig holds conversation store settings.
type DatabaseConfig struct {
	// Path to the SQLite file. Empty means <project>/.phaseguide/conversations.db.
	Path string `mapstructure:"path"`
}

// DocumentsConfig overrides document locations used for $*_DOC substitution.
// Relative paths are resolved against the project root.
type DocumentsConfig struct {
	Architecture string `mapstructure:"architecture"`
	Requirements string `mapstructure:"requirements"`
	Design       string `mapstructure:"design"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/phaseguide/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`

	// ServiceName identifies this process in traces.
	ServiceName string `mapstructure:"service_name"`
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/phaseguide/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "phaseguide", "traces", "traces.jsonl")
}

// DefaultLogPath returns the debug log location.
func DefaultLogPath() string {
	return filepath.Join(os.TempDir(), "phaseguide-debug.log")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		DefaultWorkflow: "waterfall",
		LogPath:         DefaultLogPath(),
		Workflows: WorkflowsConfig{
			Domains:  nil,
			CacheTTL: 10 * time.Minute,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "phaseguide",
		},
	}
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DefaultWorkflow) == "" {
		return fmt.Errorf("default_workflow must not be empty")
	}
	if cfg.Workflows.CacheTTL < 0 {
		return fmt.Errorf("workflows.cache_ttl must not be negative, got %s", cfg.Workflows.CacheTTL)
	}
	for _, d := range cfg.Workflows.Domains {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("workflows.domains must not contain empty entries")
		}
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// NormalizeDomains splits comma separated entries (as delivered by
// PHASEGUIDE_WORKFLOWS_DOMAINS) and lower-cases them.
func NormalizeDomains(domains []string) []string {
	var out []string
	for _, entry := range domains {
		for _, d := range strings.Split(entry, ",") {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" {
				out = append(out, d)
			}
		}
	}
	return out
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# phaseguide configuration

# Workflow used by "start" when none is given
default_workflow: waterfall

# Workflow discovery
workflows:
  # Only advertise bundled workflows from these domains (empty = all).
  # Project-local workflows in .phaseguide/workflows are always available.
  # domains: [code, architecture]
  # resource_dir: /opt/phaseguide/workflows
  cache_ttl: 10m

# Conversation database (default: .phaseguide/conversations.db)
# database:
#   path: /path/to/conversations.db

# Document locations substituted for $ARCHITECTURE_DOC, $REQUIREMENTS_DOC, $DESIGN_DOC
# documents:
#   architecture: docs/architecture.md
#   requirements: docs/requirements.md
#   design: docs/design.md

# Tracing
# tracing:
#   enabled: true
#   exporter: file
#   file_path: ~/.config/phaseguide/traces/traces.jsonl
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
