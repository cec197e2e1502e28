// Package mcpserver exposes ken's four agent requests over MCP stdio,
// grounded on the teacher's internal/mcp package: the same
// NewServer(projectPath, version)/Run(ctx)/Close() shape, wired to the
// real github.com/modelcontextprotocol/go-sdk/mcp client library
// instead of the teacher's hand-rolled JSON-RPC loop.
package mcpserver

import (
	"context"
	"fmt"
	"os"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/handler"
	"github.com/ken-run/ken/internal/store"
)

// Server wraps an mcp.Server bound to one project's store.
type Server struct {
	project core.Project
	store   *store.Store
	inner   *mcp.Server
}

// NewServer discovers the project at projectPath, opens its store, and
// registers the tool set.
func NewServer(projectPath, version string) (*Server, error) {
	project, err := core.DiscoverProject(projectPath)
	if err != nil {
		return nil, fmt.Errorf("discover project: %w", err)
	}

	st, err := store.Open(project)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	impl := &mcp.Implementation{Name: "ken", Version: version}
	inner := mcp.NewServer(impl, nil)

	s := &Server{project: project, store: st, inner: inner}
	registerTools(inner, handler.New(st))
	return s, nil
}

// Run serves MCP requests over stdio until the context is cancelled or
// stdin closes.
func (s *Server) Run(ctx context.Context) error {
	logf("serving project %s", s.project.Root)
	transport := &mcp.StdioTransport{}
	return s.inner.Run(ctx, transport)
}

// Close releases the underlying store.
func (s *Server) Close() error {
	return s.store.Close()
}

func logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[ken-mcp] "+format+"\n", args...)
}
