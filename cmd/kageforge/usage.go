package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"kageforge-hq/forge/pkg/cli"
	"kageforge-hq/forge/pkg/limits/budget"
	"kageforge-hq/forge/pkg/limits/ledger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var usageFlags struct {
	groupBy string
	days    int
	chart   bool
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage and spend from the ledger",
	Long: `Show token usage and spend recorded in the usage ledger, grouped by
provider, model, user or day, followed by the current budget status and a
daily spend chart.

The ledger is read directly, so the gateway does not need to be running.

Examples:
  kageforge usage
  kageforge usage --group-by model --days 30
  kageforge usage --group-by user -o csv`,
	RunE: runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVarP(&usageFlags.groupBy, "group-by", "g", budget.GroupProvider, "grouping (provider, model, user, day)")
	usageCmd.Flags().IntVarP(&usageFlags.days, "days", "d", 7, "number of days to report, including today")
	usageCmd.Flags().BoolVar(&usageFlags.chart, "chart", true, "draw the daily spend chart (text output only)")
}

// usageReport is the data behind the usage command.
type usageReport struct {
	GroupBy string               `json:"group_by"`
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Groups  []budget.Group       `json:"groups"`
	Totals  budget.Group         `json:"totals"`
	Daily   []budget.Group       `json:"daily"`
	Budgets []budget.ScopeStatus `json:"budgets,omitempty"`
}

func runUsage(cmd *cobra.Command, args []string) error {
	if usageFlags.days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	format, err := cli.ParseFormat(output)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Telemetry.Logging, true)
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return cli.NewCommandError("usage", err)
	}
	defer l.Close()

	tracker, err := budget.NewTracker(cfg.Budget, l, budget.WithLogger(logger))
	if err != nil {
		return cli.NewConfigError("budget", err.Error())
	}

	ctx := cmd.Context()
	if err := tracker.Rebuild(ctx); err != nil {
		return cli.NewCommandError("usage", err)
	}

	report, err := buildUsageReport(ctx, tracker, usageFlags.groupBy, usageFlags.days, time.Now())
	if err != nil {
		return cli.NewCommandError("usage", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case cli.FormatJSON:
		return cli.NewFormatter(format).FormatTo(out, report)
	case cli.FormatCSV:
		return cli.NewFormatter(format).FormatTo(out, usageTable(report))
	default:
		return renderUsage(out, report, usageFlags.chart)
	}
}

// buildUsageReport covers the last days calendar days in the tracker's
// time zone, today included.
func buildUsageReport(ctx context.Context, tracker *budget.Tracker, groupBy string, days int, now time.Time) (*usageReport, error) {
	loc := tracker.Location()
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	groups, err := tracker.GroupBy(ctx, groupBy, from, to)
	if err != nil {
		return nil, err
	}
	totals, err := tracker.Totals(ctx, from, to)
	if err != nil {
		return nil, err
	}
	byDay, err := tracker.ByDay(ctx, from, to)
	if err != nil {
		return nil, err
	}

	// One entry per day, zero-filled.
	seen := make(map[string]budget.Group, len(byDay))
	for _, g := range byDay {
		seen[g.Key] = g
	}
	daily := make([]budget.Group, 0, days)
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		g, ok := seen[key]
		if !ok {
			g = budget.Group{Key: key}
		}
		daily = append(daily, g)
	}

	return &usageReport{
		GroupBy: groupBy,
		From:    from,
		To:      to,
		Groups:  groups,
		Totals:  totals,
		Daily:   daily,
		Budgets: tracker.Status(),
	}, nil
}

func usageTable(r *usageReport) *cli.Table {
	t := &cli.Table{Headers: []string{
		"KEY", "REQUESTS", "OK", "FAILED", "REJECTED", "CACHED", "INPUT", "OUTPUT", "COST",
	}}
	add := func(g budget.Group) {
		t.Append(
			g.Key,
			strconv.Itoa(g.Requests),
			strconv.Itoa(g.Successes),
			strconv.Itoa(g.Failures),
			strconv.Itoa(g.Rejected),
			strconv.Itoa(g.CacheHits),
			strconv.Itoa(g.InputTokens),
			strconv.Itoa(g.OutputTokens),
			fmt.Sprintf("$%.4f", g.Cost),
		)
	}
	for _, g := range r.Groups {
		add(g)
	}
	total := r.Totals
	total.Key = "TOTAL"
	add(total)

	t.Style = func(col int, value string) *color.Color {
		switch {
		case col == 0 && value == "TOTAL":
			return color.New(color.Bold)
		case col == 3 && value != "0":
			return color.New(color.FgRed)
		case col == 4 && value != "0":
			return color.New(color.FgYellow)
		case col == 8:
			return color.New(color.FgCyan)
		}
		return nil
	}
	return t
}

func renderUsage(w io.Writer, r *usageReport, chart bool) error {
	fmt.Fprintf(w, "Usage by %s, %s to %s\n\n", r.GroupBy,
		r.From.Format(time.DateOnly), r.To.AddDate(0, 0, -1).Format(time.DateOnly))

	if err := (&cli.TextFormatter{}).FormatTo(w, usageTable(r)); err != nil {
		return err
	}

	if len(r.Budgets) > 0 {
		fmt.Fprintln(w, "\nBudgets")
		for _, b := range r.Budgets {
			name := string(b.Scope)
			if b.UserID != "" {
				name += " " + b.UserID
			}
			budgetColor(b).Fprintf(w, "  %-20s $%.4f / $%.2f (%.0f%%), resets %s\n",
				name, b.Consumed, b.Limit, b.Percentage*100, b.Reset.Format(time.DateTime))
		}
	}

	if chart && len(r.Daily) > 1 {
		values := make([]float64, len(r.Daily))
		for i, g := range r.Daily {
			values[i] = g.Cost
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, cli.SpendChart(values, 60, 8, "daily spend (USD)"))
	}
	return nil
}

func budgetColor(b budget.ScopeStatus) *color.Color {
	switch {
	case b.Exceeded:
		return color.New(color.FgRed, color.Bold)
	case b.AlertTriggered:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}
