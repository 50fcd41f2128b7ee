package proxy

import (
	"errors"
	"fmt"

	"github.com/dslh/mcp-toolbox/internal/toolid"
)

var (
	// ErrToolboxNotFound means the requested toolbox is not in the config.
	ErrToolboxNotFound = errors.New("toolbox not found")
	// ErrConnection means a downstream server failed to start or handshake.
	ErrConnection = errors.New("connection failed")
	// ErrToolboxNotOpen means a call addressed a toolbox that has not been opened.
	ErrToolboxNotOpen = errors.New("toolbox is not open")
	// ErrServerNotFound means the open toolbox has no live connection for the server.
	ErrServerNotFound = errors.New("server not found")
	// ErrToolNotFound means the server does not expose the tool (or it is filtered out).
	ErrToolNotFound = errors.New("tool not found")
	// ErrDownstreamTool wraps a failure reported by the downstream call itself.
	ErrDownstreamTool = errors.New("downstream tool call failed")
	// ErrShutdown is returned by operations attempted after Stop.
	ErrShutdown = errors.New("manager is shut down")
)

// RouteError annotates a routing or downstream failure with the identifier
// of the tool that was addressed.
type RouteError struct {
	ID  toolid.ToolIdentifier
	Err error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s/%s/%s: %v", e.ID.Toolbox, e.ID.Server, e.ID.Name, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

func routeError(id toolid.ToolIdentifier, format string, args ...any) error {
	return &RouteError{ID: id, Err: fmt.Errorf(format, args...)}
}
