// Package mcp connects to MCP server subprocesses and exposes their tools.
// A Tool satisfies the tools.Tool interface, so discovered tools register
// into the same registry as the builtins.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/averau/parley/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	name   string
	cmd    *exec.Cmd
	conn   *mcpsdk.ClientSession
	tools  []*Tool
	logger *slog.Logger
}

// NewClient starts the MCP server subprocess, connects over stdio and
// discovers the tools it provides.
func NewClient(ctx context.Context, name, command string, args []string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "parley", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	client := &Client{
		name:   name,
		cmd:    cmd,
		conn:   conn,
		logger: logger,
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			client.tools = append(client.tools, &Tool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				schema:      decodeSchema(t.InputSchema),
				client:      client,
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	logger.Info("MCP server connected", "server", name, "tools", len(client.tools))
	return client, nil
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// Tools returns the discovered tools in listing order.
func (c *Client) Tools() []*Tool {
	return append([]*Tool(nil), c.tools...)
}

// Close shuts down the session and terminates the server subprocess.
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.logger.Info("terminating MCP server", "server", c.name)
		return c.cmd.Process.Kill()
	}
	return nil
}

// Tool is a tool served by an external MCP server.
type Tool struct {
	serverName  string
	toolName    string
	description string
	schema      map[string]interface{}
	client      *Client
}

// Name returns the qualified name "<server>__<tool>". Vendors reject ':'
// and '.' in tool names, so a double underscore separates the parts.
func (t *Tool) Name() string {
	return fmt.Sprintf("%s__%s", t.serverName, t.toolName)
}

// Description returns the tool's description as provided by the server.
func (t *Tool) Description() string {
	return t.description
}

// Schema returns the parameter schema as provided by the server.
func (t *Tool) Schema() map[string]interface{} {
	return t.schema
}

// Execute sends the call to the MCP server and concatenates the text
// content of the result.
func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.Name())
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", t.Name(), sb.String())
	}
	return sb.String(), nil
}

// decodeSchema converts the SDK's schema value into a plain map through a
// JSON round trip, so providers can republish it untouched.
func decodeSchema(in any) map[string]interface{} {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil || schema == nil {
		return nil
	}
	return schema
}
