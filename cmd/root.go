package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/icu-agent/icu-agent/agent"
)

var (
	// Persistent CLI flags
	logLevel      string // Log verbosity level
	configPath    string // Optional YAML config file
	seed          int64  // Master seed for all randomness
	checkpointDir string // Checkpoint directory
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "icu-agent",
	Short: "PPO decision agent for clinical admission routing",
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging configures logrus from the --log flag.
func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadConfig merges defaults, the optional config file, and flag
// overrides, in that order.
func loadConfig(cmd *cobra.Command) agent.Config {
	cfg := agent.DefaultConfig()
	if configPath != "" {
		loaded, err := agent.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("unable to read config: %v", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("seed") || cmd.InheritedFlags().Changed("seed") {
		cfg.Seed = seed
	}
	if checkpointDir != "" {
		cfg.Training.CheckpointDir = checkpointDir
	}
	return cfg
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 42, "Master seed for patient sampling, exploration, and initialization")
	rootCmd.PersistentFlags().StringVar(&checkpointDir, "checkpoint-dir", "", "Checkpoint directory (default from config)")
}
