package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"kageforge-hq/forge/pkg/cli"
	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/telemetry/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	envFile string
	verbose bool
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "kageforge",
	Short: "KageForge - multi-provider AI gateway",
	Long: `KageForge is a self-hosted gateway that sits in front of several AI model
providers and exposes one OpenAI-compatible chat completions endpoint.

It routes each request to the best available provider, fails over when a
provider errors, caches identical and similar prompts, and tracks token
usage and spend against configurable budgets.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(envFile)
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "kageforge.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format (text, json, csv)")
}

// loadEnvFile loads a dotenv file. A missing file is not an error; variables
// already set in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return cli.NewConfigError("env-file", err.Error())
	}
	return nil
}

// loadConfig reads the config file with environment overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

// newLogger builds the process logger. Commands other than run log to
// stderr at warn unless --verbose is set.
func newLogger(cfg config.LoggingConfig, quiet bool) (*slog.Logger, error) {
	if quiet && !verbose {
		cfg.Level = "warn"
	}
	if verbose {
		cfg.Level = "debug"
	}
	logger, err := logging.New(cfg, os.Stderr)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)
	return logger, nil
}

func formatter() (cli.Formatter, error) {
	format, err := cli.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}
