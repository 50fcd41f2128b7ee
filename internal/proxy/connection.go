package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dslh/mcp-toolbox/internal/config"
)

// Connection is a live session with one downstream server. It belongs to
// exactly one toolbox Session and is never shared.
type Connection struct {
	id          string
	toolbox     string
	server      string
	spec        config.ServerConfig
	endpoint    *Endpoint
	session     *mcp.ClientSession
	tools       []*mcp.Tool
	byName      map[string]*mcp.Tool
	connectedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// connectServer dials, handshakes and lists tools. ctx bounds the handshake
// and tool listing; lifetime bounds the child process.
func connectServer(ctx, lifetime context.Context, dialer Dialer, info *mcp.Implementation, toolbox, server string, spec config.ServerConfig, grace time.Duration) (*Connection, error) {
	endpoint, err := dialer.Dial(lifetime, toolbox, server, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	// A server that never answers must not hold the attempt past ctx: the
	// transport's own close waits seconds before escalating to SIGKILL.
	stopKill := endpoint.killAfter(ctx)

	client := mcp.NewClient(info, nil)
	session, err := client.Connect(ctx, endpoint.Transport, &mcp.ClientSessionOptions{})
	if err != nil {
		stopKill()
		endpoint.release()
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	conn := &Connection{
		id:          uuid.NewString(),
		toolbox:     toolbox,
		server:      server,
		spec:        spec,
		endpoint:    endpoint,
		session:     session,
		connectedAt: time.Now(),
	}

	if err := conn.discoverTools(ctx); err != nil {
		stopKill()
		_ = conn.Close(grace)
		return nil, err
	}
	if !stopKill() {
		_ = conn.Close(grace)
		return nil, fmt.Errorf("failed to list tools: %w", ctx.Err())
	}

	return conn, nil
}

// discoverTools lists every page of tools and keeps those passing the filter
func (c *Connection) discoverTools(ctx context.Context) error {
	var all []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		result, err := c.session.ListTools(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}
		all = append(all, result.Tools...)
		if result.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: result.NextCursor}
	}

	c.tools = make([]*mcp.Tool, 0, len(all))
	c.byName = make(map[string]*mcp.Tool, len(all))
	for _, tool := range all {
		if tool == nil || tool.Name == "" || !c.spec.ShouldIncludeTool(tool.Name) {
			continue
		}
		if _, dup := c.byName[tool.Name]; dup {
			continue
		}
		c.tools = append(c.tools, tool)
		c.byName[tool.Name] = tool
	}

	return nil
}

// ID uniquely identifies this connection for the life of the process.
func (c *Connection) ID() string { return c.id }

// Server returns the configured server name.
func (c *Connection) Server() string { return c.server }

// ConnectedAt returns when the handshake completed.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Tools returns the cached, filtered tool list in downstream order.
func (c *Connection) Tools() []*mcp.Tool {
	return c.tools
}

// HasTool reports whether name is in the cached tool list.
func (c *Connection) HasTool(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// CallTool forwards a call using the original tool name.
func (c *Connection) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	return c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
}

// Close ends the session. If that takes longer than grace the child process
// is killed. Close is idempotent.
func (c *Connection) Close(grace time.Duration) error {
	c.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- c.session.Close() }()

		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case err := <-done:
			c.closeErr = err
		case <-timer.C:
			if c.endpoint.hasProcess() {
				// Unblocks the transport's wait, which reaps the child.
				c.endpoint.kill()
				c.closeErr = fmt.Errorf("server %s did not shut down within %s; process killed", c.server, grace)
				return
			}
			c.closeErr = fmt.Errorf("server %s did not close its %s session within %s; connection abandoned",
				c.server, c.spec.TransportKind(), grace)
		}
	})
	return c.closeErr
}
