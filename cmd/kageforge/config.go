package main

import (
	"fmt"

	"kageforge-hq/forge/pkg/cli"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file with environment overrides and defaults
applied, and report validation errors without starting anything.

Examples:
  kageforge config validate
  kageforge config validate --config deploy/kageforge.yaml`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %s is valid\n", cfgFile)

	t := &cli.Table{Headers: []string{"PROVIDER", "TYPE", "ENABLED", "DEFAULT MODEL", "MODELS"}}
	for _, p := range cfg.Providers {
		t.Append(p.Name, p.Type, fmt.Sprint(p.IsEnabled()), p.DefaultModel, fmt.Sprint(len(p.Models)))
	}
	fmt.Fprintln(out)
	if err := (&cli.TextFormatter{}).FormatTo(out, t); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nstrategy=%s failover=%d cache=%v ledger=%s\n",
		cfg.Routing.Strategy, cfg.Routing.MaxFailoverAttempts, cfg.Cache.IsEnabled(), cfg.Ledger.Backend)
	return nil
}
