package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dslh/mcp-toolbox/internal/toolid"
)

var errToolReportedError = errors.New("tool reported an error")

func newCallCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "call <toolbox__server__tool> [json-arguments]",
		Short:   "Open a toolbox and call one of its tools",
		Example: `  mcp-toolbox call dev__filesystem__read_file '{"path": "README.md"}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, opts, args)
		},
	}
}

func runCall(cmd *cobra.Command, opts *options, args []string) error {
	id, err := toolid.Decode(args[0])
	if err != nil {
		return err
	}

	arguments := map[string]any{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	loaded, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := opts.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	manager := opts.newManager(loaded.cfg, logger)
	defer manager.Stop()

	if _, err := manager.OpenToolbox(cmd.Context(), id.Toolbox); err != nil {
		return err
	}
	result, err := manager.RouteCall(cmd.Context(), id, arguments)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if result.IsError {
		return errToolReportedError
	}
	return nil
}
