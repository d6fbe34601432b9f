package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"kageforge-hq/forge/pkg/cli"
	"kageforge-hq/forge/pkg/gateway"
	"kageforge-hq/forge/pkg/providers"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var askFlags struct {
	model    string
	provider string
	system   string
	user     string
	stream   bool
	maxTok   int
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt through the gateway",
	Long: `Send a single prompt through the full gateway pipeline (cache, budget,
routing with failover) without starting the HTTP server. The usage is
recorded in the ledger like any other request.

Examples:
  kageforge ask "what is a circuit breaker?"
  kageforge ask --model gpt-4o-mini --stream "write a haiku about caches"
  echo "explain this" | kageforge ask`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askFlags.model, "model", "m", "", "model name (default: provider default)")
	askCmd.Flags().StringVarP(&askFlags.provider, "provider", "p", "", "pin the request to one provider")
	askCmd.Flags().StringVar(&askFlags.system, "system", "", "system prompt")
	askCmd.Flags().StringVar(&askFlags.user, "user", "", "user id charged for the request")
	askCmd.Flags().BoolVarP(&askFlags.stream, "stream", "s", false, "stream the reply")
	askCmd.Flags().IntVar(&askFlags.maxTok, "max-tokens", 0, "completion token cap")
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args)
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

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{})
	if err != nil {
		return cli.NewCommandError("ask", err)
	}
	defer rt.Close()

	req := &providers.Request{
		ID:           uuid.NewString(),
		Model:        askFlags.model,
		ProviderHint: askFlags.provider,
		UserID:       askFlags.user,
		MaxTokens:    askFlags.maxTok,
		Stream:       askFlags.stream,
	}
	if askFlags.system != "" {
		req.Messages = append(req.Messages, providers.Message{Role: providers.RoleSystem, Content: askFlags.system})
	}
	req.Messages = append(req.Messages, providers.Message{Role: providers.RoleUser, Content: prompt})

	var resp *providers.Response
	if askFlags.stream {
		resp, err = streamAnswer(ctx, cmd.OutOrStdout(), rt, req)
	} else {
		var res *gateway.Result
		if res, err = rt.gateway.Complete(ctx, req); err == nil {
			resp = res.Response
			fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
		}
	}
	if err != nil {
		return cli.NewCommandError("ask", err)
	}

	printProvenance(cmd.ErrOrStderr(), resp)
	return nil
}

func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("no prompt given")
	}
	return prompt, nil
}

func streamAnswer(ctx context.Context, out io.Writer, rt *gatewayRuntime, req *providers.Request) (*providers.Response, error) {
	res, stream, err := rt.gateway.CompleteStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		d, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintln(out)
			return nil, err
		}
		fmt.Fprint(out, d.Content)
	}
	fmt.Fprintln(out)

	if resp := stream.Response(); resp != nil {
		return resp, nil
	}
	return res.Response, nil
}

func printProvenance(w io.Writer, resp *providers.Response) {
	if resp == nil {
		return
	}
	dim := color.New(color.Faint)
	source := resp.Provider
	if resp.CacheLayer != "" {
		source = fmt.Sprintf("%s via %s cache", resp.Provider, resp.CacheLayer)
	}
	dim.Fprintf(w, "[%s · %s · %d in / %d out · $%.6f · %s]\n",
		source, resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Cost, resp.Latency.Round(time.Millisecond))
}
