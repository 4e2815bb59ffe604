package mcp

import (
	"database/sql"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/engine"
)

// Tool groups. disabled_types names groups; every tool belongs to one.
const (
	groupSession = "session"
	groupLead    = "lead"
)

// KnownTypes lists the tool groups that disabled_types may name.
var KnownTypes = []string{groupLead, groupSession}

type tool struct {
	group  string
	def    mcp.Tool
	handle func(*Handlers) server.ToolHandlerFunc
}

func (t tool) name() string { return t.def.Name }

// tools is the registration order exposed to clients.
var tools = []tool{
	{groupSession, turnToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleTurn }},
	{groupSession, transcriptToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleTranscript }},
	{groupLead, fetchToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetch }},
	{groupLead, listToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleList }},
	{groupLead, exportToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport }},
	{groupLead, deleteToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete }},
	{groupLead, purgeToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge }},
}

// AllToolNames returns every tool name in registration order.
func AllToolNames() []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.name()
	}
	return names
}

// ValidateDisabledTools returns the entries of names that are not tools.
func ValidateDisabledTools(names []string) []string {
	return unknownOf(names, AllToolNames())
}

// ValidateDisabledTypes returns the entries of names that are not tool groups.
func ValidateDisabledTypes(names []string) []string {
	return unknownOf(names, KnownTypes)
}

func unknownOf(names, known []string) []string {
	unknown := []string{}
	for _, n := range names {
		if !slices.Contains(known, n) {
			unknown = append(unknown, n)
		}
	}
	return unknown
}

// GroupOf returns the group of the named tool, or "" for an unknown tool.
func GroupOf(name string) string {
	for _, t := range tools {
		if t.name() == name {
			return t.group
		}
	}
	return ""
}

// enabledTools filters tools by cfg.DisabledTools and cfg.DisabledTypes.
func enabledTools(cfg *config.Config) []tool {
	if cfg == nil {
		return tools
	}
	var out []tool
	for _, t := range tools {
		if slices.Contains(cfg.DisabledTypes, t.group) || slices.Contains(cfg.DisabledTools, t.name()) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// NewServer creates an MCP server exposing the enabled leadcap tools.
func NewServer(db *sql.DB, cfg *config.Config, eng *engine.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer("leadcap", version, server.WithToolCapabilities(true))
	h := NewHandlers(db, cfg, eng)
	for _, t := range enabledTools(cfg) {
		s.AddTool(t.def, t.handle(h))
	}
	return s
}

// Run serves the tools over stdio until the client disconnects.
func Run(db *sql.DB, cfg *config.Config, eng *engine.Engine, version string) error {
	return server.ServeStdio(NewServer(db, cfg, eng, version))
}
