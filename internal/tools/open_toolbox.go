package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dslh/mcp-toolbox/internal/config"
	"github.com/dslh/mcp-toolbox/internal/proxy"
)

// OpenToolboxName is the registered name of the open_toolbox meta-operation.
const OpenToolboxName = "open_toolbox"

// OpenToolboxArgs defines the arguments for the open_toolbox tool
type OpenToolboxArgs struct {
	Toolbox string `json:"toolbox" jsonschema:"Name of the toolbox to open"`
}

// RegisterOpenToolbox registers the open_toolbox tool with the MCP server
func RegisterOpenToolbox(server *mcp.Server, manager proxy.ToolboxManager, cfg *config.Config) {
	description := "Connect every server in a toolbox and list its tools with their input schemas. " +
		"Opening an already open toolbox returns the same list without reconnecting."
	if cfg != nil && cfg.Toolboxes.Len() > 0 {
		description += fmt.Sprintf(" Available toolboxes: %s.", strings.Join(cfg.Toolboxes.Keys(), ", "))
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        OpenToolboxName,
		Description: description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args OpenToolboxArgs) (*mcp.CallToolResult, any, error) {
		return handleOpenToolbox(ctx, manager, args)
	})
}

func handleOpenToolbox(ctx context.Context, manager proxy.ToolboxManager, args OpenToolboxArgs) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(args.Toolbox)
	if name == "" {
		return ErrorResponse("Error: toolbox name is required"), nil, nil
	}

	catalog, err := manager.OpenToolbox(ctx, name)
	if err != nil {
		return ErrorResponse("Failed to open toolbox '%s': %v", name, err), nil, nil
	}

	return JSONResponse(catalog), catalog, nil
}
