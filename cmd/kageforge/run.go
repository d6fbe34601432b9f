package main

import (
	"fmt"

	"kageforge-hq/forge/pkg/cli"
	"kageforge-hq/forge/pkg/server"
	"kageforge-hq/forge/pkg/telemetry/health"

	"github.com/spf13/cobra"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway server",
	Long: `Start the KageForge gateway with the specified configuration.

The server listens on the configured address and serves the OpenAI-compatible
chat completions endpoint plus usage, budget, cache and provider endpoints.

Examples:
  # Start with default config
  kageforge run

  # Start with custom config
  kageforge run --config /etc/kageforge/kageforge.yaml

  # Override listen address
  kageforge run --listen 0.0.0.0:8787

  # Validate config and wiring without starting the server
  kageforge run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := newLogger(cfg.Telemetry.Logging, false)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{background: !runFlags.dryRun})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintf(out, "✓ Configuration valid (%d providers, strategy %s)\n", rt.manager.Count(), rt.router.Strategy())
		return nil
	}

	checker := health.New(0)
	checker.RegisterCheck("providers", health.ProvidersCheck(rt.router))
	checker.RegisterCheck("ledger", health.LedgerCheck(rt.ledger))

	deps := server.Deps{
		Gateway:   rt.gateway,
		Health:    checker,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	}
	if rt.metrics != nil {
		deps.Metrics = rt.metrics.Handler()
		deps.MetricsPath = cfg.Telemetry.Metrics.Path
	}

	srv, err := server.New(cfg.Server, deps, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintf(out, "KageForge v%s\n", Version)
	fmt.Fprintf(out, "✓ Configuration loaded from %s\n", cfgFile)
	fmt.Fprintf(out, "✓ Providers: %v (strategy %s)\n", rt.manager.Names(), rt.router.Strategy())
	if rt.cache != nil {
		fmt.Fprintf(out, "✓ Cache layers: %v\n", rt.cache.Layers())
	}
	fmt.Fprintf(out, "✓ Listening on http://%s/v1/chat/completions\n", cfg.Server.ListenAddress)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}
