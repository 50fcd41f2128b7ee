package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dslh/mcp-toolbox/internal/config"
)

func newListCommand(opts *options) *cobra.Command {
	var showTools bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured toolboxes",
		Long:  `List the configured toolboxes and their servers. With --tools every
toolbox is opened and the identifiers of its tools are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, showTools)
		},
	}
	cmd.Flags().BoolVar(&showTools, "tools", false, "open each toolbox and list its tools")

	return cmd
}

func runList(cmd *cobra.Command, opts *options, showTools bool) error {
	out := cmd.OutOrStdout()

	loaded, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !loaded.found {
		fmt.Fprintf(out, "Toolboxes:\n  (no configuration found at %s)\n", loaded.path)
		return nil
	}

	fmt.Fprintln(out, "Toolboxes:")
	if loaded.cfg.Toolboxes.Len() == 0 {
		fmt.Fprintln(out, "  (none)")
		return nil
	}
	for name, toolbox := range loaded.cfg.Toolboxes.All() {
		printToolbox(out, name, toolbox)
	}
	if !showTools {
		return nil
	}

	logger, err := opts.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	manager := opts.newManager(loaded.cfg, logger)
	defer manager.Stop()

	for _, name := range loaded.cfg.Toolboxes.Keys() {
		fmt.Fprintf(out, "\nTools in '%s':\n", name)

		catalog, err := manager.OpenToolbox(cmd.Context(), name)
		if err != nil {
			fmt.Fprintf(out, "  (failed to open: %v)\n", err)
			continue
		}
		if len(catalog.Tools) == 0 {
			fmt.Fprintln(out, "  (no tools)")
		}
		for _, tool := range catalog.Tools {
			fmt.Fprintf(out, "  • %s - %s\n", tool.Identifier, tool.Description)
		}
		for _, failure := range catalog.FailedServers {
			fmt.Fprintf(out, "  ! %s: %s\n", failure.Server, failure.Error)
		}
	}

	return nil
}

func printToolbox(out io.Writer, name string, toolbox config.ToolboxConfig) {
	line := fmt.Sprintf("  • %s (%s)", name, pluralize(toolbox.Servers.Len(), "server", "servers"))
	if description := strings.TrimSpace(toolbox.Description); description != "" {
		line += " - " + description
	}
	fmt.Fprintln(out, line)

	for server, spec := range toolbox.Servers.All() {
		target := spec.URL
		if spec.TransportKind() == config.TransportStdio {
			target = strings.TrimSpace(spec.Command + " " + strings.Join(spec.Args, " "))
		}
		fmt.Fprintf(out, "      %s [%s] %s\n", server, spec.TransportKind(), target)
	}
}
