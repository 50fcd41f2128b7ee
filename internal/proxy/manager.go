package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dslh/mcp-toolbox/internal/config"
	"github.com/dslh/mcp-toolbox/internal/toolid"
)

const (
	// DefaultConnectTimeout bounds each server's spawn, handshake and tool listing.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultCloseGrace is how long a connection may take to close before its
	// process is killed.
	DefaultCloseGrace = 5 * time.Second
)

// Manager owns the registry of open toolboxes. Each toolbox is opened at
// most once; its connections are never shared with another toolbox.
type Manager struct {
	config         *config.Config
	dialer         Dialer
	clientInfo     *mcp.Implementation
	connectTimeout time.Duration
	closeGrace     time.Duration
	logger         *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	stopped  bool
	opening  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithDialer replaces the transport dialer
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) { m.dialer = d }
}

// WithConnectTimeout sets the default per-server connect timeout
func WithConnectTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithCloseGrace sets how long Close waits before killing a server process
func WithCloseGrace(d time.Duration) ManagerOption {
	return func(m *Manager) { m.closeGrace = d }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithQuietMode discards all manager logging
func WithQuietMode() ManagerOption {
	return func(m *Manager) { m.logger = slog.New(slog.NewTextHandler(io.Discard, nil)) }
}

// WithClientInfo sets the implementation info sent to downstream servers
func WithClientInfo(info *mcp.Implementation) ManagerOption {
	return func(m *Manager) { m.clientInfo = info }
}

// NewManager creates a manager with an empty registry
func NewManager(cfg *config.Config, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:         cfg,
		dialer:         TransportDialer{},
		clientInfo:     &mcp.Implementation{Name: "mcp-toolbox", Version: "0.1.0"},
		connectTimeout: DefaultConnectTimeout,
		closeGrace:     DefaultCloseGrace,
		logger:         slog.Default(),
		sessions:       make(map[string]*Session),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() *config.Config {
	return m.config
}

// OpenToolbox connects every server of the named toolbox and returns its
// catalog. Opening an already open toolbox returns the cached catalog without
// touching any downstream server. Concurrent opens of the same name share a
// single attempt.
func (m *Manager) OpenToolbox(ctx context.Context, name string) (*Catalog, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: toolbox name is required", ErrToolboxNotFound)
	}
	if session, ok := m.Session(name); ok {
		return session.Catalog(), nil
	}
	toolbox, ok := m.config.Toolboxes.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrToolboxNotFound, name, strings.Join(m.config.Toolboxes.Keys(), ", "))
	}

	ch := m.opening.DoChan(name, func() (any, error) {
		if session, ok := m.Session(name); ok {
			return session, nil
		}
		return m.openSession(name, toolbox)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session).Catalog(), nil
	}
}

// openSession connects servers in declaration order and registers the session
func (m *Manager) openSession(name string, toolbox config.ToolboxConfig) (*Session, error) {
	if m.isStopped() {
		return nil, ErrShutdown
	}

	m.logger.Info("opening toolbox", "toolbox", name, "servers", toolbox.Servers.Len())
	session := newSession(name, toolbox)

	var failures []ServerFailure
	for serverName, spec := range toolbox.Servers.All() {
		conn, err := m.connect(name, serverName, spec)
		if err != nil {
			err = fmt.Errorf("%w: toolbox %q server %q: %w", ErrConnection, name, serverName, err)
			m.logger.Warn("failed to connect server", "toolbox", name, "server", serverName, "error", err)

			if toolbox.RequireAllServers {
				if closeErr := session.Close(m.closeGrace); closeErr != nil {
					m.logger.Warn("failed to roll back toolbox", "toolbox", name, "error", closeErr)
				}
				return nil, err
			}
			failures = append(failures, ServerFailure{Server: serverName, Error: err.Error()})
			continue
		}

		m.logger.Info("connected server", "toolbox", name, "server", serverName, "connection", conn.ID(), "tools", len(conn.Tools()))
		for _, tool := range conn.Tools() {
			m.logger.Debug("discovered tool", "toolbox", name, "server", serverName, "tool", tool.Name)
		}
		session.add(conn)
	}

	if toolbox.Servers.Len() > 0 && len(session.order) == 0 {
		reasons := make([]string, len(failures))
		for i, f := range failures {
			reasons[i] = f.Error
		}
		return nil, fmt.Errorf("%w: toolbox %q: no servers could be connected: %s", ErrConnection, name, strings.Join(reasons, "; "))
	}

	session.finish(failures, m.logger)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		_ = session.Close(m.closeGrace)
		return nil, ErrShutdown
	}
	m.sessions[name] = session
	m.mu.Unlock()

	m.logger.Info("opened toolbox", "toolbox", name, "session", session.ID(),
		"servers_connected", len(session.order), "servers_failed", len(failures), "tools", len(session.catalog.Tools))
	return session, nil
}

func (m *Manager) connect(toolbox, server string, spec config.ServerConfig) (*Connection, error) {
	timeout := spec.ConnectTimeout(m.connectTimeout)
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	conn, err := connectServer(ctx, m.ctx, m.dialer, m.clientInfo, toolbox, server, spec, m.closeGrace)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return conn, err
}

// RouteCall forwards arguments to the tool named by id on the connection
// owned by id's toolbox session. The result is returned unchanged.
func (m *Manager) RouteCall(ctx context.Context, id toolid.ToolIdentifier, arguments map[string]any) (*mcp.CallToolResult, error) {
	if err := id.Validate(); err != nil {
		return nil, &RouteError{ID: id, Err: err}
	}

	session, ok := m.Session(id.Toolbox)
	if !ok {
		return nil, routeError(id, "%w: %q; call open_toolbox first", ErrToolboxNotOpen, id.Toolbox)
	}

	conn, ok := session.Connection(id.Server)
	if !ok {
		if _, configured := session.config.Servers.Get(id.Server); configured {
			return nil, routeError(id, "%w: server %q failed to connect when toolbox %q was opened", ErrServerNotFound, id.Server, id.Toolbox)
		}
		return nil, routeError(id, "%w: toolbox %q has no server %q", ErrServerNotFound, id.Toolbox, id.Server)
	}

	if !conn.HasTool(id.Name) {
		return nil, routeError(id, "%w: server %q in toolbox %q has no tool %q", ErrToolNotFound, id.Server, id.Toolbox, id.Name)
	}

	if arguments == nil {
		arguments = map[string]any{}
	}

	result, err := conn.CallTool(ctx, id.Name, arguments)
	if err != nil {
		return nil, routeError(id, "%w: %w", ErrDownstreamTool, err)
	}
	if result.IsError {
		return annotateToolError(id, result), nil
	}
	return result, nil
}

// annotateToolError prefixes the first text block of a failed result with
// the tool's triple. Everything else in the result is passed through.
func annotateToolError(id toolid.ToolIdentifier, result *mcp.CallToolResult) *mcp.CallToolResult {
	prefix := fmt.Sprintf("%s/%s/%s", id.Toolbox, id.Server, id.Name)
	annotated := *result
	annotated.Content = make([]mcp.Content, 0, len(result.Content)+1)

	labelled := false
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok && !labelled {
			copied := *text
			copied.Text = prefix + ": " + text.Text
			content = &copied
			labelled = true
		}
		annotated.Content = append(annotated.Content, content)
	}
	if !labelled {
		message := &mcp.TextContent{Text: prefix + ": " + ErrDownstreamTool.Error()}
		annotated.Content = append([]mcp.Content{message}, annotated.Content...)
	}
	return &annotated
}

// Session returns the open session for a toolbox.
func (m *Manager) Session(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[name]
	return s, ok
}

// OpenToolboxes returns the names of open toolboxes in config order.
func (m *Manager) OpenToolboxes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sessions))
	for _, name := range m.config.Toolboxes.Keys() {
		if _, ok := m.sessions[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// CloseToolbox removes a toolbox from the registry and closes its
// connections. A later OpenToolbox starts fresh connections.
func (m *Manager) CloseToolbox(name string) error {
	m.mu.Lock()
	session, ok := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrToolboxNotOpen, name)
	}

	m.logger.Info("closing toolbox", "toolbox", name, "session", session.ID())
	return session.Close(m.closeGrace)
}

// Stop closes every open toolbox in parallel and terminates any remaining
// child processes. One toolbox failing to close does not hold up the others.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var g errgroup.Group
	for name, session := range sessions {
		g.Go(func() error {
			if err := session.Close(m.closeGrace); err != nil {
				m.logger.Warn("failed to close toolbox cleanly", "toolbox", name, "error", err)
				return fmt.Errorf("toolbox %s: %w", name, err)
			}
			return nil
		})
	}
	err := g.Wait()

	m.cancel()
	return err
}

func (m *Manager) isStopped() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopped
}
