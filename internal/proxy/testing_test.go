package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/dslh/mcp-toolbox/internal/config"
)

// fakeDialer serves downstream servers in-process. The server
// implementation is chosen by the server's command; Dial counts stand in for
// process spawns.
type fakeDialer struct {
	mu        sync.Mutex
	calls     map[string]int
	factories map[string]func(spec config.ServerConfig) *mcp.Server
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		calls: make(map[string]int),
		factories: map[string]func(config.ServerConfig) *mcp.Server{
			"mem": func(config.ServerConfig) *mcp.Server { return newMemServer() },
			"fs":  newFSServer,
		},
	}
}

func (d *fakeDialer) Dial(ctx context.Context, toolbox, server string, spec config.ServerConfig) (*Endpoint, error) {
	d.mu.Lock()
	d.calls[toolbox+"/"+server]++
	factory, ok := d.factories[spec.Command]
	d.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("exec: %q: executable file not found in $PATH", spec.Command)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	if _, err := factory(spec).Connect(ctx, serverTransport, nil); err != nil {
		return nil, err
	}
	return &Endpoint{Transport: clientTransport}, nil
}

func (d *fakeDialer) count(toolbox, server string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[toolbox+"/"+server]
}

func (d *fakeDialer) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

// newMemServer echoes its arguments back as JSON.
func newMemServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "mem", Version: "test"}, nil)
	mcp.AddTool(srv, &mcp.Tool{Name: "store", Description: "Store a value"},
		func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			data, err := json.Marshal(args)
			if err != nil {
				return nil, nil, err
			}
			return textResult(string(data)), nil, nil
		})
	mcp.AddTool(srv, &mcp.Tool{Name: "recall", Description: "Recall a value"},
		func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			return textResult("recalled"), nil, nil
		})
	mcp.AddTool(srv, &mcp.Tool{Name: "explode", Description: "Always fails"},
		func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "kaboom"}},
				IsError: true,
			}, nil, nil
		})
	return srv
}

// newFSServer reads "files" relative to the root given as its first arg.
func newFSServer(spec config.ServerConfig) *mcp.Server {
	root := "/"
	if len(spec.Args) > 0 {
		root = spec.Args[0]
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: "fs", Version: "test"}, nil)
	mcp.AddTool(srv, &mcp.Tool{Name: "read", Description: "Read a file"},
		func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			path, _ := args["path"].(string)
			return textResult(strings.TrimSuffix(root, "/") + "/" + path), nil, nil
		})
	return srv
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

type serverDef struct {
	name string
	spec config.ServerConfig
}

func server(name, command string, args ...string) serverDef {
	return serverDef{name: name, spec: config.ServerConfig{Command: command, Args: args}}
}

func toolbox(description string, servers ...serverDef) config.ToolboxConfig {
	tb := config.ToolboxConfig{Description: description}
	for _, s := range servers {
		tb.Servers.Set(s.name, s.spec)
	}
	return tb
}

func newConfig(toolboxes map[string]config.ToolboxConfig, order ...string) *config.Config {
	cfg := &config.Config{}
	for _, name := range order {
		cfg.Toolboxes.Set(name, toolboxes[name])
	}
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config, dialer Dialer, opts ...ManagerOption) *Manager {
	t.Helper()
	opts = append([]ManagerOption{
		WithDialer(dialer),
		WithQuietMode(),
		WithCloseGrace(time.Second),
		WithConnectTimeout(5 * time.Second),
	}, opts...)
	m := NewManager(cfg, opts...)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func findTool(catalog *Catalog, identifier string) (ToolDescriptor, bool) {
	for _, d := range catalog.Tools {
		if d.Identifier == identifier {
			return d, true
		}
	}
	return ToolDescriptor{}, false
}

func asRouteError(t *testing.T, err error) *RouteError {
	t.Helper()
	var routeErr *RouteError
	require.True(t, errors.As(err, &routeErr), "expected *RouteError, got %T: %v", err, err)
	return routeErr
}
