package main

import (
	"fmt"
	"os"

	"github.com/raaihank/vibeguard/internal/config"
	"github.com/raaihank/vibeguard/internal/logger"
	"github.com/raaihank/vibeguard/internal/proxy"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "vibeguard",
	Short: "Reversible redaction of secrets and personal data for LLM traffic",
	Long: `VibeGuard swaps sensitive values for stable placeholders before text is
sent to a model and swaps them back in the model's replies.

It runs as a local service with a hook API for chat hosts and a reverse
proxy in front of OpenAI, Anthropic and Ollama, or one-shot from the
command line.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vibeguard %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	proxy.Version = version

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default: search "+config.EnvConfigPath+" and the standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(redactCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(healthCheckCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration named by --config or found on disk
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config. Quiet commands log only
// warnings unless --verbose is set.
func newLogger(cfg *config.Config, quiet bool) (*logger.Logger, error) {
	level := cfg.LogLevel()
	if quiet && !verbose {
		level = "warn"
	}
	if verbose {
		level = "debug"
	}

	loggerConfig := logger.Config{
		Level:  level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
