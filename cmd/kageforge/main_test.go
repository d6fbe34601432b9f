package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/cache"
	"kageforge-hq/forge/pkg/cli"
	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/providers"
	"kageforge-hq/forge/pkg/routing"
	"kageforge-hq/forge/pkg/server"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

const testConfig = `
server:
  listen_address: "127.0.0.1:0"

models:
  - name: stub-small
    capabilities: [streaming]
    pricing: {input: 1, output: 2}

providers:
  - name: stub-a
    type: stub
    models: [stub-small]
  - name: stub-b
    type: stub
    models: [stub-small]
    options:
      reply: "from b"

routing:
  strategy: quality

budget:
  daily: 10

ledger:
  backend: sqlite
  path: %q

telemetry:
  logging:
    level: error
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kageforge.yaml")
	content := fmt.Sprintf(testConfig, filepath.Join(dir, "usage.db"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, "--env-file", ""))
	defer func() {
		rootCmd.SetArgs(nil)
		output = "text"
		serverURL = ""
	}()

	_, err := rootCmd.ExecuteC()
	return stdout.String(), err
}

func testRuntime(t *testing.T, path string) *gatewayRuntime {
	t.Helper()
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	rt, err := newRuntime(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), runtimeOptions{})
	if err != nil {
		t.Fatalf("newRuntime() error = %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestNewRuntime(t *testing.T) {
	rt := testRuntime(t, writeTestConfig(t))

	if got := rt.manager.Names(); strings.Join(got, ",") != "stub-a,stub-b" {
		t.Errorf("providers = %v, want declaration order", got)
	}
	if rt.router.Strategy() != "quality" {
		t.Errorf("Strategy() = %q, want quality", rt.router.Strategy())
	}
	if rt.cache == nil || rt.metrics == nil {
		t.Fatal("cache and metrics should be enabled by default")
	}

	req := &providers.Request{
		ID:       "r1",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "echo me"}},
	}
	res, err := rt.gateway.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.Response.Provider != "stub-a" || !strings.Contains(res.Response.Content, "echo me") {
		t.Errorf("response = %+v", res.Response)
	}

	again, err := rt.gateway.Complete(context.Background(), &providers.Request{
		ID:       "r2",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "echo me"}},
	})
	if err != nil || !again.Cached() {
		t.Errorf("second Complete() cached = %v, err = %v", again != nil && again.Cached(), err)
	}
}

func TestNewRuntime_NoEnabledProviders(t *testing.T) {
	cfg, err := config.LoadConfigWithEnvOverrides(writeTestConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	off := false
	for i := range cfg.Providers {
		cfg.Providers[i].Enabled = &off
	}
	cfg.Ledger.Backend = "memory"

	if _, err := newRuntime(context.Background(), cfg, slog.Default(), runtimeOptions{}); err == nil {
		t.Error("newRuntime() without enabled providers should fail")
	}
}

func TestRunDryRun(t *testing.T) {
	out, err := executeCommand(t, "run", "--dry-run", "--config", writeTestConfig(t))
	if err != nil {
		t.Fatalf("run --dry-run error = %v", err)
	}
	if !strings.Contains(out, "Configuration valid (2 providers, strategy quality)") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigValidate(t *testing.T) {
	path := writeTestConfig(t)
	out, err := executeCommand(t, "config", "validate", "--config", path)
	if err != nil {
		t.Fatalf("config validate error = %v", err)
	}
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "stub-b") {
		t.Errorf("output = %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("providers: []\n"), 0o644)
	_, err = executeCommand(t, "config", "validate", "--config", bad)
	if cli.ExitCode(err) != cli.ExitConfigError {
		t.Errorf("ExitCode(%v) = %d, want %d", err, cli.ExitCode(err), cli.ExitConfigError)
	}
}

func TestAskThenUsage(t *testing.T) {
	path := writeTestConfig(t)

	out, err := executeCommand(t, "ask", "--config", path, "--user", "alice", "--stream=false", "hello gateway")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if !strings.Contains(out, "hello gateway") {
		t.Errorf("ask output = %q, want the echoed prompt", out)
	}

	out, err = executeCommand(t, "ask", "--config", path, "--user", "bob", "--provider", "stub-b", "--stream", "second")
	if err != nil {
		t.Fatalf("ask --stream error = %v", err)
	}
	if strings.TrimSpace(out) != "from b" {
		t.Errorf("ask --stream output = %q, want %q", out, "from b")
	}

	out, err = executeCommand(t, "usage", "--config", path, "--group-by", "user", "--chart=false")
	if err != nil {
		t.Fatalf("usage error = %v", err)
	}
	for _, want := range []string{"Usage by user", "alice", "bob", "TOTAL", "daily"} {
		if !strings.Contains(out, want) {
			t.Errorf("usage output missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand(t, "usage", "--config", path, "--group-by", "provider", "-o", "csv")
	if err != nil {
		t.Fatalf("usage -o csv error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[1], "stub-a,1,1,") || !strings.HasPrefix(lines[2], "stub-b,1,1,") {
		t.Errorf("csv output = %q", out)
	}
}

func TestUsageBadFlags(t *testing.T) {
	path := writeTestConfig(t)
	if _, err := executeCommand(t, "usage", "--config", path, "--days", "0"); err == nil {
		t.Error("usage --days 0 should fail")
	}
	if _, err := executeCommand(t, "usage", "--config", path, "--group-by", "color"); err == nil {
		t.Error("usage --group-by color should fail")
	}
}

func TestBreakersAndCacheCommands(t *testing.T) {
	rt := testRuntime(t, writeTestConfig(t))
	srv, err := server.New(rt.cfg.Server, server.Deps{Gateway: rt.gateway}, rt.logger)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req := &providers.Request{Messages: []providers.Message{{Role: providers.RoleUser, Content: "warm"}}}
	if _, err := rt.gateway.Complete(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(t, "breakers", "--server", ts.URL)
	if err != nil {
		t.Fatalf("breakers error = %v", err)
	}
	if !strings.Contains(out, "Strategy: quality") || !strings.Contains(out, "stub-a") || !strings.Contains(out, "closed") {
		t.Errorf("breakers output:\n%s", out)
	}

	out, err = executeCommand(t, "cache", "stats", "--server", ts.URL)
	if err != nil {
		t.Fatalf("cache stats error = %v", err)
	}
	if !strings.Contains(out, "1 writes") || !strings.Contains(out, "memory") {
		t.Errorf("cache stats output:\n%s", out)
	}

	out, err = executeCommand(t, "cache", "purge", "--server", ts.URL)
	if err != nil || !strings.Contains(out, "Cache purged") {
		t.Errorf("cache purge = %q, %v", out, err)
	}

	if _, err := executeCommand(t, "breakers", "--server", "http://127.0.0.1:1"); err == nil {
		t.Error("breakers against a closed port should fail")
	}
}

func TestProvidersTable(t *testing.T) {
	now := time.Now()
	table := providersTable([]routing.ProviderStatus{
		{Name: "a", Type: "openai", Breaker: breaker.Snapshot{State: breaker.StateClosed}},
		{Name: "b", Type: "anthropic", Breaker: breaker.Snapshot{State: breaker.StateOpen, ConsecutiveFailures: 5, OpenedAt: now.Add(-30 * time.Second)}, Latency: 1500 * time.Millisecond},
	}, now)

	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
	b := table.Rows[1]
	if b[2] != "open" || b[3] != "5" || b[6] != "1.5s" || b[7] != "30s ago" {
		t.Errorf("row = %v", b)
	}
	if table.Rows[0][7] != "-" {
		t.Errorf("closed breaker opened = %q, want -", table.Rows[0][7])
	}
}

func TestCacheTable(t *testing.T) {
	table := cacheTable(&cache.Stats{
		Hits:    map[string]int64{cache.LayerSimilarity: 2, cache.LayerMemory: 5},
		Entries: map[string]int{cache.LayerMemory: 10, cache.LayerPersistent: 40},
	})

	var layers []string
	for _, r := range table.Rows {
		layers = append(layers, r[0])
	}
	if got := strings.Join(layers, ","); got != "memory,persistent,similarity" {
		t.Errorf("layers = %s, want lookup order", got)
	}
	if table.Rows[0][1] != "10" || table.Rows[0][2] != "5" {
		t.Errorf("memory row = %v", table.Rows[0])
	}
}

func TestReadPrompt(t *testing.T) {
	if got, _ := readPrompt(strings.NewReader("ignored"), []string{"arg"}); got != "arg" {
		t.Errorf("readPrompt(arg) = %q", got)
	}
	if got, _ := readPrompt(strings.NewReader("  piped\n"), nil); got != "piped" {
		t.Errorf("readPrompt(stdin) = %q", got)
	}
	if _, err := readPrompt(strings.NewReader(""), nil); err == nil {
		t.Error("readPrompt() with no input should fail")
	}
}
