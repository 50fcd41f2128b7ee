package proxy

import (
	"context"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dslh/mcp-toolbox/internal/config"
)

// Endpoint is a not-yet-connected transport to one downstream server.
type Endpoint struct {
	Transport mcp.Transport
	// Cmd is the child process behind a stdio transport, nil otherwise. It is
	// used to force termination when a graceful close does not finish.
	Cmd *exec.Cmd
}

// hasProcess reports whether the endpoint is backed by a started child.
func (e *Endpoint) hasProcess() bool {
	return e != nil && e.Cmd != nil && e.Cmd.Process != nil
}

// kill sends SIGKILL to the child. It does not reap: the command
// transport's Close waits on the process, and kill only unblocks that wait.
func (e *Endpoint) kill() {
	if !e.hasProcess() {
		return
	}
	_ = e.Cmd.Process.Kill()
}

// release kills the child and reaps it. Use it only once nothing else will
// wait on the process, such as after a failed handshake.
func (e *Endpoint) release() {
	if !e.hasProcess() {
		return
	}
	_ = e.Cmd.Process.Kill()
	if e.Cmd.ProcessState == nil {
		_ = e.Cmd.Wait()
	}
}

// killAfter kills the child once ctx is done. The returned stop function
// disarms it and reports whether it did so before the kill happened.
func (e *Endpoint) killAfter(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, e.kill)
}

// Dialer produces transports for downstream servers. ctx bounds the lifetime
// of anything the dialer starts (child processes), not just the dial.
type Dialer interface {
	Dial(ctx context.Context, toolbox, server string, spec config.ServerConfig) (*Endpoint, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, toolbox, server string, spec config.ServerConfig) (*Endpoint, error)

func (f DialerFunc) Dial(ctx context.Context, toolbox, server string, spec config.ServerConfig) (*Endpoint, error) {
	return f(ctx, toolbox, server, spec)
}

// TransportDialer is the production dialer: it launches stdio servers as
// child processes and points sse/http servers at their URL.
type TransportDialer struct{}

func (TransportDialer) Dial(ctx context.Context, toolbox, server string, spec config.ServerConfig) (*Endpoint, error) {
	switch spec.TransportKind() {
	case config.TransportSSE:
		return &Endpoint{Transport: &mcp.SSEClientTransport{Endpoint: spec.URL}}, nil
	case config.TransportHTTP:
		return &Endpoint{Transport: &mcp.StreamableClientTransport{Endpoint: spec.URL}}, nil
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	if len(spec.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), spec.Env)
	}
	// Child diagnostics share our stderr; stdout carries the protocol.
	cmd.Stderr = os.Stderr

	return &Endpoint{Transport: &mcp.CommandTransport{Command: cmd}, Cmd: cmd}, nil
}

// mergeEnv overlays overrides onto a KEY=VALUE environment list.
func mergeEnv(base []string, overrides map[string]string) []string {
	env := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		env[k] = v
	}

	merged := make([]string, 0, len(env))
	for k, v := range env {
		merged = append(merged, k+"="+v)
	}
	slices.Sort(merged)
	return merged
}
