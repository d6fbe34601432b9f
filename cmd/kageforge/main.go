// KageForge is a self-hosted gateway in front of multiple AI model providers.
//
// It exposes one OpenAI-compatible endpoint and adds:
//   - Routing with failover across providers (cost, performance, quality,
//     round-robin, weighted)
//   - Per-provider circuit breakers and admission control
//   - A layered response cache (memory, SQLite, Postgres, similarity)
//   - Token and spend tracking with daily, monthly and per-user budgets
//
// Usage:
//
//	# Start the gateway
//	kageforge run --config kageforge.yaml
//
//	# Send one prompt through the gateway without starting a server
//	kageforge ask "summarize RFC 9110 in one line"
//
//	# Spend report for the last week, grouped by model
//	kageforge usage --group-by model --days 7
//
//	# Inspect a running gateway
//	kageforge breakers
//	kageforge cache stats
package main

import "os"

func main() {
	os.Exit(Execute())
}
