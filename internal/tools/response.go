package tools

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrorResponse creates a standardized error response for tool calls
func ErrorResponse(format string, args ...interface{}) *mcp.CallToolResult {
	message := fmt.Sprintf(format, args...)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}
}

// SuccessResponse creates a standardized success response for tool calls
func SuccessResponse(format string, args ...interface{}) *mcp.CallToolResult {
	message := fmt.Sprintf(format, args...)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
	}
}

// JSONResponse renders v as indented JSON text for clients that ignore
// structured content.
func JSONResponse(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResponse("Failed to encode response: %v", err)
	}
	return SuccessResponse("%s", data)
}
