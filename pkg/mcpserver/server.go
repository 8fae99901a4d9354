// Package mcpserver exposes the knowledge graph over the Model Context
// Protocol so AI tutors can read and update learner state mid-conversation.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/knograph/knograph/pkg/knograph"
	"github.com/knograph/knograph/pkg/logger"
)

// Server wraps the service facade in an MCP stdio server.
type Server struct {
	svc    *knograph.Service
	server *mcp.Server
	log    *logger.Logger
}

// NewServer creates the MCP server and registers all tools.
func NewServer(svc *knograph.Service, version string, log *logger.Logger) *Server {
	s := &Server{
		svc: svc,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "knograph",
			Version: version,
		}, nil),
		log: log,
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdin/stdout until the client disconnects or the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server starting")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) Close() error {
	return s.svc.Close()
}
