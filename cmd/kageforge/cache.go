package main

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"kageforge-hq/forge/pkg/cache"
	"kageforge-hq/forge/pkg/cli"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or purge the response cache of a running gateway",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache hits, misses and entries per layer",
	RunE:  runCacheStats,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every entry from every cache layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newGatewayClient().do(cmd.Context(), http.MethodDelete, "/v1/cache", nil); err != nil {
			return cli.NewCommandError("cache purge", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Cache purged")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd)
	cacheCmd.PersistentFlags().StringVar(&serverURL, "server", "", "gateway base URL (default: from config listen address)")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	var stats cache.Stats
	if err := newGatewayClient().do(cmd.Context(), http.MethodGet, "/v1/cache/stats", &stats); err != nil {
		return cli.NewCommandError("cache stats", err)
	}

	out := cmd.OutOrStdout()
	if _, ok := f.(*cli.JSONFormatter); ok {
		return f.FormatTo(out, stats)
	}
	if _, ok := f.(*cli.TextFormatter); ok {
		fmt.Fprintf(out, "Hit rate: %.1f%% (%d hits, %d misses, %d writes)\n\n",
			stats.HitRate*100, stats.TotalHits(), stats.Misses, stats.Writes)
	}
	return f.FormatTo(out, cacheTable(&stats))
}

func cacheTable(s *cache.Stats) *cli.Table {
	layers := make(map[string]bool)
	for _, m := range []map[string]int64{s.Hits, s.Evictions, s.Errors} {
		for l := range m {
			layers[l] = true
		}
	}
	for l := range s.Entries {
		layers[l] = true
	}
	names := make([]string, 0, len(layers))
	for l := range layers {
		names = append(names, l)
	}
	slices.SortFunc(names, func(a, b string) int {
		if d := layerOrder(a) - layerOrder(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	t := &cli.Table{Headers: []string{"LAYER", "ENTRIES", "HITS", "EVICTIONS", "ERRORS"}}
	for _, l := range names {
		t.Append(
			l,
			strconv.Itoa(s.Entries[l]),
			strconv.FormatInt(s.Hits[l], 10),
			strconv.FormatInt(s.Evictions[l], 10),
			strconv.FormatInt(s.Errors[l], 10),
		)
	}
	return t
}

// layerOrder sorts layers in lookup order.
func layerOrder(layer string) int {
	switch layer {
	case cache.LayerMemory:
		return 0
	case cache.LayerPersistent:
		return 1
	case cache.LayerRemote:
		return 2
	case cache.LayerSimilarity:
		return 3
	default:
		return 4
	}
}
