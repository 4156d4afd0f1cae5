package mcp

import (
	"context"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
	"github.com/Togather-Foundation/eventproxy/internal/luma"
	"github.com/Togather-Foundation/eventproxy/internal/mcp/prompts"
	"github.com/Togather-Foundation/eventproxy/internal/mcp/tools"
)

// Server wraps the MCP server with the event client and template catalog.
type Server struct {
	mcp     *mcpserver.MCPServer
	client  *luma.Client
	catalog *templates.Catalog
}

type Config struct {
	Name    string
	Version string
}

// NewServer creates an MCP server with the event and template tools and the
// planning prompt registered. A nil catalog uses the built-in templates.
//
//	srv := mcp.NewServer(mcp.Config{Name: "eventproxy", Version: "1.0.0"}, client, catalog)
func NewServer(cfg Config, client *luma.Client, catalog *templates.Catalog) *Server {
	if catalog == nil {
		catalog = templates.Default()
	}
	mcpServer := mcpserver.NewMCPServer(
		cfg.Name,
		cfg.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions("Manage events on the calendar: list, fetch, create, update and delete events, "+
			"or create them from templates. Calls are rate limited and retried by the proxy."),
	)

	srv := &Server{mcp: mcpServer, client: client, catalog: catalog}
	srv.registerTools()
	srv.registerPrompts()
	return srv
}

// MCPServer returns the underlying server for use with transports.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	events := tools.NewEventTools(s.client)
	s.mcp.AddTool(events.ListEventsTool(), events.ListEventsHandler)
	s.mcp.AddTool(events.GetEventTool(), events.GetEventHandler)
	s.mcp.AddTool(events.CreateEventTool(), events.CreateEventHandler)
	s.mcp.AddTool(events.UpdateEventTool(), events.UpdateEventHandler)
	s.mcp.AddTool(events.DeleteEventTool(), events.DeleteEventHandler)

	tmpl := tools.NewTemplateTools(s.catalog, s.client)
	s.mcp.AddTool(tmpl.ListTemplatesTool(), tmpl.ListTemplatesHandler)
	s.mcp.AddTool(tmpl.CreateFromTemplateTool(), tmpl.CreateFromTemplateHandler)
}

func (s *Server) registerPrompts() {
	p := prompts.NewPromptTemplates(s.catalog)
	s.mcp.AddPrompt(p.PlanEventPrompt(), p.PlanEventHandler)
}

// Shutdown is a hook for transport cleanup. Nothing is held open today.
func (s *Server) Shutdown(_ context.Context) error {
	return nil
}
