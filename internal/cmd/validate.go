package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file without starting any server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}
}

func runValidate(cmd *cobra.Command, opts *options) error {
	loaded, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if !loaded.found {
		return fmt.Errorf("no config file at %s: %w", loaded.path, os.ErrNotExist)
	}

	servers := 0
	for _, toolbox := range loaded.cfg.Toolboxes.All() {
		servers += toolbox.Servers.Len()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%s, %s)\n",
		loaded.path,
		pluralize(loaded.cfg.Toolboxes.Len(), "toolbox", "toolboxes"),
		pluralize(servers, "server", "servers"))
	return nil
}
