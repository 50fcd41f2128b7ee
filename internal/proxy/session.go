package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dslh/mcp-toolbox/internal/config"
	"github.com/dslh/mcp-toolbox/internal/schema"
	"github.com/dslh/mcp-toolbox/internal/toolid"
)

// ToolDescriptor is one catalog entry returned by open_toolbox.
type ToolDescriptor struct {
	Name        string               `json:"name"`
	Identifier  string               `json:"identifier"`
	Description string               `json:"description"`
	InputSchema *jsonschema.Schema   `json:"inputSchema,omitempty"`
	Annotations *mcp.ToolAnnotations `json:"annotations,omitempty"`
	Server      string               `json:"server"`
	Toolbox     string               `json:"toolbox"`
}

// ID returns the structured identifier used for routing.
func (d ToolDescriptor) ID() toolid.ToolIdentifier {
	return toolid.New(d.Toolbox, d.Server, d.Name)
}

// ServerFailure records a server that could not be connected while opening.
type ServerFailure struct {
	Server string `json:"server"`
	Error  string `json:"error"`
}

// Catalog is the cached result of opening a toolbox. It is built once and
// must not be modified by callers.
type Catalog struct {
	Toolbox          string           `json:"toolbox"`
	Description      string           `json:"description"`
	ServersConnected int              `json:"servers_connected"`
	Tools            []ToolDescriptor `json:"tools"`
	FailedServers    []ServerFailure  `json:"failed_servers,omitempty"`
}

// Session is an opened toolbox: its own connections and its own catalog.
type Session struct {
	id          string
	name        string
	config      config.ToolboxConfig
	order       []string
	connections map[string]*Connection
	catalog     *Catalog
	openedAt    time.Time
}

func newSession(name string, cfg config.ToolboxConfig) *Session {
	return &Session{
		id:          uuid.NewString(),
		name:        name,
		config:      cfg,
		connections: make(map[string]*Connection),
	}
}

func (s *Session) add(conn *Connection) {
	s.order = append(s.order, conn.server)
	s.connections[conn.server] = conn
}

// finish builds the catalog from the connections in declaration order.
func (s *Session) finish(failures []ServerFailure, logger *slog.Logger) {
	catalog := &Catalog{
		Toolbox:          s.name,
		Description:      s.config.Description,
		ServersConnected: len(s.order),
		Tools:            []ToolDescriptor{},
		FailedServers:    failures,
	}

	for _, serverName := range s.order {
		for _, tool := range s.connections[serverName].Tools() {
			identifier := toolid.Encode(s.name, serverName, tool.Name)
			catalog.Tools = append(catalog.Tools, ToolDescriptor{
				Name:        tool.Name,
				Identifier:  identifier,
				Description: fmt.Sprintf("[%s/%s] %s", s.name, serverName, tool.Description),
				InputSchema: schema.ForCatalog(tool.InputSchema, identifier, logger),
				Annotations: tool.Annotations,
				Server:      serverName,
				Toolbox:     s.name,
			})
		}
	}

	s.catalog = catalog
	s.openedAt = time.Now()
}

// ID uniquely identifies this session for the life of the process.
func (s *Session) ID() string { return s.id }

// Name returns the toolbox name.
func (s *Session) Name() string { return s.name }

// OpenedAt returns when the toolbox finished opening.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Catalog returns the cached catalog.
func (s *Session) Catalog() *Catalog { return s.catalog }

// Connection returns the live connection for a server.
func (s *Session) Connection(server string) (*Connection, bool) {
	conn, ok := s.connections[server]
	return conn, ok
}

// Close closes every connection. Failures are collected, not short-circuited.
func (s *Session) Close(grace time.Duration) error {
	var errs []error
	for _, serverName := range s.order {
		if err := s.connections[serverName].Close(grace); err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", serverName, err))
		}
	}
	return errors.Join(errs...)
}
