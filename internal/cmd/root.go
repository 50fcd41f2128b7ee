// Package cmd implements the mcp-toolbox command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/dslh/mcp-toolbox/internal/config"
	"github.com/dslh/mcp-toolbox/internal/paths"
	"github.com/dslh/mcp-toolbox/internal/proxy"
)

// Version is reported in the MCP handshake, both upstream and downstream.
var Version = "0.1.0"

// options holds the flags shared by every subcommand.
type options struct {
	configPath     string
	logLevel       string
	quiet          bool
	connectTimeout time.Duration
}

// loadedConfig is a config plus where it came from. found is false when the
// default location has no config file, in which case cfg is empty.
type loadedConfig struct {
	cfg   *config.Config
	path  string
	found bool
}

func (o *options) loadConfig() (*loadedConfig, error) {
	if o.configPath != "" {
		cfg, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		return &loadedConfig{cfg: cfg, path: o.configPath, found: true}, nil
	}

	path, err := paths.GetConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return &loadedConfig{cfg: &config.Config{}, path: path}, nil
	}
	if err != nil {
		return nil, err
	}
	return &loadedConfig{cfg: cfg, path: path, found: true}, nil
}

func (o *options) logger(w io.Writer) (*slog.Logger, error) {
	if o.quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", o.logLevel, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func (o *options) newManager(cfg *config.Config, logger *slog.Logger) *proxy.Manager {
	return proxy.NewManager(cfg,
		proxy.WithLogger(logger),
		proxy.WithConnectTimeout(o.connectTimeout),
		proxy.WithClientInfo(implementation()),
	)
}

func implementation() *mcp.Implementation {
	return &mcp.Implementation{Name: "mcp-toolbox", Version: Version}
}

// NewRootCommand builds the command tree. Running it without a subcommand
// serves the meta-server on stdio.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	serve := newServeCommand(opts)

	root := &cobra.Command{
		Use:   "mcp-toolbox",
		Short: "MCP server that groups downstream servers into toolboxes",
		Long:  `mcp-toolbox is an MCP server exposing two tools, open_toolbox and use_tool.
Toolboxes are named groups of downstream MCP servers that are only started
when a client opens them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}
	// The root command doubles as serve, so it takes serve's flags too.
	root.Flags().AddFlagSet(serve.Flags())

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default $MCP_TOOLBOX_DIR/toolboxes.json)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "discard log output")
	flags.DurationVar(&opts.connectTimeout, "connect-timeout", proxy.DefaultConnectTimeout, "default per-server connect timeout")

	root.AddCommand(serve, newListCommand(opts), newCallCommand(opts), newValidateCommand(opts))
	return root
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
