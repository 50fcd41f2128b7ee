package proxy

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dslh/mcp-toolbox/internal/toolid"
)

// ToolboxManager is the contract the meta-server handlers are built on.
// *Manager implements it; tests substitute mocks.
type ToolboxManager interface {
	// OpenToolbox connects a toolbox (once) and returns its catalog
	OpenToolbox(ctx context.Context, name string) (*Catalog, error)

	// RouteCall invokes a tool on the connection addressed by id
	RouteCall(ctx context.Context, id toolid.ToolIdentifier, arguments map[string]any) (*mcp.CallToolResult, error)
}

var _ ToolboxManager = (*Manager)(nil)
