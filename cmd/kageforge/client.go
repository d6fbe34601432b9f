package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/server"
)

// serverURL is the --server flag shared by commands that query a running
// gateway.
var serverURL string

// gatewayClient calls the admin endpoints of a running gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

func newGatewayClient() *gatewayClient {
	base := serverURL
	if base == "" {
		addr := "127.0.0.1:8787"
		if cfg, err := config.LoadConfigWithEnvOverrides(cfgFile); err == nil && cfg.Server.ListenAddress != "" {
			addr = cfg.Server.ListenAddress
		}
		if strings.HasPrefix(addr, ":") || strings.HasPrefix(addr, "0.0.0.0:") {
			addr = "127.0.0.1:" + addr[strings.LastIndexByte(addr, ':')+1:]
		}
		base = "http://" + addr
	}
	return &gatewayClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// do sends a request and decodes a JSON body into out when out is non-nil.
func (c *gatewayClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e server.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, e.Error.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
