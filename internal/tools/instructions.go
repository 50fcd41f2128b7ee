package tools

import (
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dslh/mcp-toolbox/internal/config"
	"github.com/dslh/mcp-toolbox/internal/proxy"
)

const (
	noToolboxesMessage = "No toolboxes are configured. Add toolboxes to the mcp-toolbox " +
		"configuration file to make downstream tools available."
	noDescription = "(no description)"
)

// Instructions describes the configured toolboxes for the initialize
// handshake. It reads only the config, so counts are configured servers, not
// live connections.
func Instructions(cfg *config.Config) string {
	if cfg == nil || cfg.Toolboxes.Len() == 0 {
		return noToolboxesMessage
	}

	var b strings.Builder
	b.WriteString("Available toolboxes:\n")
	for name, toolbox := range cfg.Toolboxes.All() {
		description := strings.TrimSpace(toolbox.Description)
		if description == "" {
			description = noDescription
		}

		count := toolbox.Servers.Len()
		noun := "servers"
		if count == 1 {
			noun = "server"
		}
		fmt.Fprintf(&b, "- %s (%d %s): %s\n", name, count, noun, description)
	}
	fmt.Fprintf(&b, "\nCall %s with a toolbox name to connect it and list its tools, "+
		"then call %s with the tool's {toolbox, server, name} and its arguments.", OpenToolboxName, UseToolName)

	return b.String()
}

// NewServer builds the meta-server exposing open_toolbox and use_tool.
func NewServer(impl *mcp.Implementation, cfg *config.Config, manager proxy.ToolboxManager) *mcp.Server {
	server := mcp.NewServer(impl, &mcp.ServerOptions{
		Instructions: Instructions(cfg),
	})

	RegisterOpenToolbox(server, manager, cfg)
	RegisterUseTool(server, manager)

	return server
}
