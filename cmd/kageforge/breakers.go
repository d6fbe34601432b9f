package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/cli"
	"kageforge-hq/forge/pkg/routing"
	"kageforge-hq/forge/pkg/server"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var breakersCmd = &cobra.Command{
	Use:   "breakers",
	Short: "Show provider circuit breakers and load",
	Long: `Show the circuit breaker state, in-flight and queued requests, and
average latency of every provider of a running gateway.

Examples:
  kageforge breakers
  kageforge breakers --server http://gateway.internal:8787 -o json`,
	RunE: runBreakers,
}

func init() {
	rootCmd.AddCommand(breakersCmd)
	breakersCmd.Flags().StringVar(&serverURL, "server", "", "gateway base URL (default: from config listen address)")
}

func runBreakers(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	var resp server.ProvidersResponse
	if err := newGatewayClient().do(cmd.Context(), http.MethodGet, "/v1/providers", &resp); err != nil {
		return cli.NewCommandError("breakers", err)
	}

	out := cmd.OutOrStdout()
	if _, ok := f.(*cli.JSONFormatter); ok {
		return f.FormatTo(out, resp)
	}
	if _, ok := f.(*cli.TextFormatter); ok {
		fmt.Fprintf(out, "Strategy: %s\n\n", resp.Strategy)
	}
	return f.FormatTo(out, providersTable(resp.Providers, time.Now()))
}

func providersTable(statuses []routing.ProviderStatus, now time.Time) *cli.Table {
	t := &cli.Table{Headers: []string{"PROVIDER", "TYPE", "STATE", "FAILURES", "IN-FLIGHT", "QUEUED", "LATENCY", "OPENED"}}
	for _, s := range statuses {
		opened := "-"
		if !s.Breaker.OpenedAt.IsZero() && s.Breaker.State != breaker.StateClosed {
			opened = now.Sub(s.Breaker.OpenedAt).Round(time.Second).String() + " ago"
		}
		latency := "-"
		if s.Latency > 0 {
			latency = s.Latency.Round(time.Millisecond).String()
		}
		t.Append(
			s.Name,
			s.Type,
			string(s.Breaker.State),
			strconv.Itoa(s.Breaker.ConsecutiveFailures),
			strconv.FormatInt(s.InFlight, 10),
			strconv.FormatInt(s.Queued, 10),
			latency,
			opened,
		)
	}
	t.Style = func(col int, value string) *color.Color {
		if col != 2 {
			return nil
		}
		switch breaker.State(value) {
		case breaker.StateOpen:
			return color.New(color.FgRed, color.Bold)
		case breaker.StateHalfOpen:
			return color.New(color.FgYellow)
		default:
			return color.New(color.FgGreen)
		}
	}
	return t
}
