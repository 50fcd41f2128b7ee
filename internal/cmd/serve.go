package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/dslh/mcp-toolbox/internal/tools"
)

const httpShutdownTimeout = 5 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the meta-server (stdio unless --http is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, httpAddr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")

	return cmd
}

func runServe(cmd *cobra.Command, opts *options, httpAddr string) error {
	logger, err := opts.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	loaded, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if !loaded.found {
		logger.Warn("no config file found; serving with no toolboxes", "path", loaded.path)
	}

	manager := opts.newManager(loaded.cfg, logger)
	defer func() {
		if err := manager.Stop(); err != nil {
			logger.Warn("shutdown finished with errors", "error", err)
		}
	}()

	server := tools.NewServer(implementation(), loaded.cfg, manager)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting mcp-toolbox",
		"config", loaded.path,
		"toolboxes", loaded.cfg.Toolboxes.Len(),
		"http", httpAddr)

	if httpAddr == "" {
		err := server.Run(ctx, &mcp.StdioTransport{})
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	httpServer := &http.Server{Addr: httpAddr, Handler: handler}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
