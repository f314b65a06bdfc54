// Package tools implements the local actions a model may invoke: filesystem
// access, shell commands, and tools served by MCP subprocesses. A Registry
// holds everything available; a toolset selects the subset one run exposes.
package tools

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/averau/parley/config"
	"github.com/averau/parley/errors"
	"github.com/averau/parley/llm"
	"github.com/averau/parley/tools/mcp"
	"github.com/bmatcuk/doublestar/v4"
)

// Tool defines one action the agent can take on the model's behalf. Schema
// returns the JSON-schema parameter object published to providers.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Executor runs a named tool with already-decoded arguments. The engine
// depends on this interface, not on the registry.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Registry holds all registered tools, builtin and MCP alike.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry builds a registry with the builtin tools wired to the
// filesystem and command restrictions from cfg. MCP tools are registered
// afterwards, once their servers are connected.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{tools: make(map[string]Tool), logger: logger}

	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&ListDirTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&ExecuteCommandTool{allowedCommands: cfg.AllowedCommands})

	// Surface broken allowlist patterns once, at startup.
	for _, pattern := range cfg.AllowedCommands {
		if _, err := regexp.Compile(pattern); err != nil {
			logger.Warn("invalid allowed_commands pattern, falling back to exact match",
				"pattern", pattern, "error", err)
		}
	}
	return r
}

// ConnectMCPServers starts each configured MCP server subprocess and
// registers its tools under "<server>__<tool>" names. It returns the
// connected clients so the caller can close them on shutdown. A server that
// fails to start is logged and skipped; the builtins keep working.
func (r *Registry) ConnectMCPServers(ctx context.Context, servers []config.MCPServer) []*mcp.Client {
	var clients []*mcp.Client
	for _, server := range servers {
		client, err := mcp.NewClient(ctx, server.Name, server.Command, server.Args, r.logger)
		if err != nil {
			r.logger.Error("MCP server failed to start", "server", server.Name, "error", err)
			continue
		}
		for _, t := range client.Tools() {
			r.Register(t)
		}
		clients = append(clients, client)
	}
	return clients
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Active resolves a toolset into the concrete tools it names, in toolset
// order. Every name must be registered, including "<server>__<tool>" MCP
// names; an unregistered name is a configuration error.
func (r *Registry) Active(ts *config.Toolset) (*Active, error) {
	active := &Active{index: make(map[string]Tool)}
	for _, name := range ts.Tools {
		t, ok := r.tools[name]
		if !ok {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", name, ts.Name)
		}
		if _, dup := active.index[name]; dup {
			continue
		}
		active.index[name] = t
		active.list = append(active.list, t)
	}
	return active, nil
}

// Active is the tool selection one run exposes to the model. It implements
// Executor over exactly that selection; tools outside it do not exist as far
// as the model is concerned.
type Active struct {
	list  []Tool
	index map[string]Tool
}

// Definitions returns the canonical tool declarations in selection order.
func (a *Active) Definitions() []llm.Tool {
	defs := make([]llm.Tool, len(a.list))
	for i, t := range a.list {
		defs[i] = llm.Tool{
			Name:            t.Name(),
			Description:     t.Description(),
			ParameterSchema: t.Schema(),
		}
	}
	return defs
}

// Names returns the selected tool names in selection order.
func (a *Active) Names() []string {
	names := make([]string, len(a.list))
	for i, t := range a.list {
		names[i] = t.Name()
	}
	return names
}

func (a *Active) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t, ok := a.index[name]
	if !ok {
		return "", errors.New("unknown tool '%s'", name)
	}
	return t.Execute(ctx, args)
}

// objectSchema builds the standard object schema for a tool's parameters.
func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// isPathRestricted reports whether path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed reports whether a command matches the allowlist. Patterns
// are regular expressions; one that does not compile degrades to exact
// string comparison.
func isCommandAllowed(command string, allowed []string) bool {
	if len(strings.Fields(command)) == 0 {
		return false
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
