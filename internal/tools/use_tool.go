package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dslh/mcp-toolbox/internal/proxy"
	"github.com/dslh/mcp-toolbox/internal/toolid"
)

// UseToolName is the registered name of the use_tool meta-operation.
const UseToolName = "use_tool"

// UseToolArgs defines the arguments for the use_tool tool
type UseToolArgs struct {
	Tool      toolid.ToolIdentifier `json:"tool" jsonschema:"The tool to call, exactly as listed by open_toolbox"`
	Arguments map[string]any        `json:"arguments,omitempty" jsonschema:"Arguments for the tool; defaults to an empty object"`
}

// RegisterUseTool registers the use_tool tool with the MCP server
func RegisterUseTool(server *mcp.Server, manager proxy.ToolboxManager) {
	mcp.AddTool(server, &mcp.Tool{
		Name: UseToolName,
		Description: "Call a tool from an open toolbox. Pass the toolbox, server and name " +
			"from the open_toolbox listing, plus the tool's arguments.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UseToolArgs) (*mcp.CallToolResult, any, error) {
		return handleUseTool(ctx, manager, args)
	})
}

// handleUseTool forwards a call to the downstream server and returns its
// result unchanged
func handleUseTool(ctx context.Context, manager proxy.ToolboxManager, args UseToolArgs) (*mcp.CallToolResult, any, error) {
	if err := args.Tool.Validate(); err != nil {
		return ErrorResponse("Error: %v", err), nil, nil
	}

	arguments := args.Arguments
	if arguments == nil {
		arguments = map[string]any{}
	}

	result, err := manager.RouteCall(ctx, args.Tool, arguments)
	if err != nil {
		return ErrorResponse("Tool call failed: %v", err), nil, nil
	}

	return result, result.StructuredContent, nil
}
