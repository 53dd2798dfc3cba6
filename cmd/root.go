package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/phaseguide/internal/config"
	"github.com/zjrosen/phaseguide/internal/git"
	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/paths"
)

var (
	version    = "dev"
	cfgFile    string
	debugFlag  bool
	prettyFlag bool
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "phaseguide",
	Short: "Structured development workflows for coding agents",
	Long: `phaseguide keeps a coding agent's conversation on a structured development
workflow. It tracks the current phase per project branch, maintains a
markdown plan file and tells the agent what to do next.

Run "phaseguide serve" to expose the guide as MCP tools over stdio, or use the
subcommands to drive a conversation from the terminal.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: <project>/.phaseguide/config.yaml, then ~/.config/phaseguide/config.yaml)")
	rootCmd.PersistentFlags().StringP("project", "p", "",
		"project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write debug logs (also PHASEGUIDE_DEBUG=1)")
	rootCmd.PersistentFlags().BoolVar(&prettyFlag, "pretty", false,
		"render instructions as styled markdown instead of JSON")
}

// initConfig loads configuration into cfg. Lookup order: --config, the
// project config, the user config, then defaults. PHASEGUIDE_* environment
// variables override file values.
func initConfig() {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PHASEGUIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlag("project_path", rootCmd.PersistentFlags().Lookup("project"))

	project := v.GetString("project_path")
	if project == "" {
		project = "."
	}
	project = git.RepoRoot(paths.ProjectRoot(project))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if _, err := os.Stat(paths.ConfigPath(project)); err == nil {
		v.SetConfigFile(paths.ConfigPath(project))
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".config", "phaseguide"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	cfg = config.Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: decoding config: %v\n", err)
	}
	cfg.Workflows.Domains = config.NormalizeDomains(cfg.Workflows.Domains)
	configFileUsed = v.ConfigFileUsed()
}

// configFileUsed is the config file that was loaded, if any.
var configFileUsed string

func setDefaults(v *viper.Viper) {
	defaults := config.Defaults()
	v.SetDefault("project_path", defaults.ProjectPath)
	v.SetDefault("default_workflow", defaults.DefaultWorkflow)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("log_path", defaults.LogPath)
	v.SetDefault("workflows.domains", defaults.Workflows.Domains)
	v.SetDefault("workflows.resource_dir", defaults.Workflows.ResourceDir)
	v.SetDefault("workflows.cache_ttl", defaults.Workflows.CacheTTL)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("documents.architecture", defaults.Documents.Architecture)
	v.SetDefault("documents.requirements", defaults.Documents.Requirements)
	v.SetDefault("documents.design", defaults.Documents.Design)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
}

var logCleanup func()

// setupLogging initializes the file logger when --debug or debug: true is set.
func setupLogging(_ *cobra.Command, _ []string) error {
	if !debugFlag && !cfg.Debug {
		return nil
	}
	cleanup, err := log.Init(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCleanup = cleanup
	log.Info(log.CatConfig, "phaseguide starting", "version", version, "config", configFileUsed, "project", cfg.ProjectPath)
	return nil
}

// Execute runs the root command
func Execute() error {
	defer func() {
		if logCleanup != nil {
			logCleanup()
		}
	}()
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
