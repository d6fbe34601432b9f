/*
Package cli provides command-line helpers for the kageforge command.

Output Formatting:

Command results are printed as a colored table (default), JSON or CSV:

	table := &cli.Table{Headers: []string{"PROVIDER", "COST"}}
	table.Append("openai", "$1.20")
	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, table); err != nil {
		return err
	}

Charts:

SpendChart renders a daily spend series as an ASCII line chart for
terminals.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
