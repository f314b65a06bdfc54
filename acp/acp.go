package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/averau/parley/agent"
	"github.com/averau/parley/config"
	"github.com/averau/parley/errors"
	"github.com/averau/parley/llm"
	"github.com/averau/parley/session"
	"github.com/averau/parley/tools"
)

// JSON-RPC 2.0 error codes used by the server.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Server speaks the Agent Client Protocol over a newline-delimited JSON-RPC
// stream, normally stdio. Nothing but JSON-RPC messages is ever written to
// the output; logging goes through the slog logger, which the CLI points at
// stderr.
type Server struct {
	cfg      *config.Config
	provider llm.Provider
	tools    *tools.Active
	sessions *session.Registry
	reader   *bufio.Reader
	writer   *bufio.Writer
	writeMu  sync.Mutex
	logger   *slog.Logger
}

// NewServer builds a server reading requests from in and writing responses
// and notifications to out. The provider must already be configured.
func NewServer(cfg *config.Config, provider llm.Provider, active *tools.Active, in io.Reader, out io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:      cfg,
		provider: provider,
		tools:    active,
		sessions: session.NewRegistry(),
		reader:   bufio.NewReader(in),
		writer:   bufio.NewWriter(out),
		logger:   logger,
	}
}

// Run reads requests until EOF. Methods: initialize, session/new,
// session/load (re-attach to an in-process session), session/prompt.
// session/prompt emits session/update notifications (agent_message_chunk,
// tool_call, tool_result) while the loop runs and answers with
// stopReason end_turn.
func (s *Server) Run(ctx context.Context) error {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err == io.EOF {
			if len(line) == 0 {
				return nil
			}
			// Process a final unterminated line before exiting.
		} else if err != nil {
			return errors.Wrapf(err, "acp: read failed")
		}

		payload := strings.TrimSpace(string(line))
		if payload == "" {
			if err == io.EOF {
				return nil
			}
			continue
		}

		var req request
		if jsonErr := json.Unmarshal([]byte(payload), &req); jsonErr != nil {
			s.logger.Warn("acp request failed to parse", "error", jsonErr)
			s.writeError(nil, codeParseError, "Parse error", nil)
		} else {
			s.dispatch(ctx, &req)
		}

		if err == io.EOF {
			return nil
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req *request) {
	s.logger.Debug("acp request", "method", req.Method, "id", req.ID)
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "session/new":
		s.handleSessionNew(req)
	case "session/load":
		s.handleSessionLoad(req)
	case "session/prompt":
		s.handleSessionPrompt(ctx, req)
	default:
		s.writeError(req.ID, codeMethodNotFound, "Method not found", req.Method)
	}
}

// request is a JSON-RPC 2.0 request. A missing ID marks a notification.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response is a JSON-RPC 2.0 response. ID deliberately has no omitempty: a
// numeric id of 0 must survive, and a parse-error response carries id null.
type response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (s *Server) writeJSON(obj any) {
	data, err := json.Marshal(obj)
	if err != nil {
		s.logger.Error("acp message failed to serialize", "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		s.logger.Error("acp write failed", "error", err)
		return
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		s.logger.Error("acp write failed", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.logger.Error("acp flush failed", "error", err)
	}
}

func (s *Server) writeResult(id, result any) {
	s.writeJSON(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id any, code int, message string, data any) {
	s.writeJSON(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}})
}

func (s *Server) writeNotification(method string, params any) {
	s.writeJSON(notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) handleInitialize(req *request) {
	s.writeResult(req.ID, map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

func (s *Server) handleSessionNew(req *request) {
	conv := s.sessions.New()
	s.logger.Info("acp session created", "session", conv.ID)
	s.writeResult(req.ID, map[string]any{"sessionId": conv.ID})
}

// handleSessionLoad re-attaches to a session created earlier in this
// process and replays its history as session/update notifications. There is
// no disk persistence; an id from another process is simply unknown.
func (s *Server) handleSessionLoad(req *request) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}

	conv, ok := s.sessions.Get(p.SessionID)
	if !ok {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", fmt.Sprintf("unknown sessionId '%s'", p.SessionID))
		return
	}

	for _, msg := range conv.Messages() {
		switch msg.Role {
		case llm.RoleUser:
			s.writeNotification("session/update", updateParams(conv.ID, chunkUpdate("user_message_chunk", msg.Content)))
		case llm.RoleAssistant:
			if msg.Content != "" {
				s.writeNotification("session/update", updateParams(conv.ID, chunkUpdate("agent_message_chunk", msg.Content)))
			}
		}
	}
	s.writeResult(req.ID, json.RawMessage("null"))
}

func (s *Server) handleSessionPrompt(ctx context.Context, req *request) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}

	conv, ok := s.sessions.Get(p.SessionID)
	if !ok {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", fmt.Sprintf("unknown sessionId '%s'", p.SessionID))
		return
	}

	opts := agent.Options{
		Logger: s.logger,
		OnProgress: func(iteration int, resp llm.Response) {
			if resp.Content != "" {
				s.writeNotification("session/update", updateParams(conv.ID, chunkUpdate("agent_message_chunk", resp.Content)))
			}
			for _, tc := range resp.ToolCalls {
				s.writeNotification("session/update", updateParams(conv.ID, map[string]any{
					"sessionUpdate": "tool_call",
					"toolCall": map[string]any{
						"id":   tc.ID,
						"name": tc.Name,
						"args": json.RawMessage(argumentsOrEmpty(tc.Arguments)),
					},
				}))
			}
		},
		OnToolResult: func(call llm.ToolCall, out llm.ToolOutput) {
			s.writeNotification("session/update", updateParams(conv.ID, map[string]any{
				"sessionUpdate": "tool_result",
				"toolResult": map[string]any{
					"toolCallId": out.CallID,
					"result":     out.Output,
				},
			}))
		},
	}

	a, err := agent.New(s.cfg, s.provider, conv, s.tools, nil, opts)
	if err != nil {
		s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}

	resp, err := a.ProcessTurn(ctx, extractUserText(p.Prompt))
	if err != nil {
		s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}
	if !resp.Success {
		message := "provider request failed"
		if resp.Error != nil {
			message = resp.Error.Message
		}
		s.writeError(req.ID, codeInternalError, "Internal error", message)
		return
	}

	s.writeResult(req.ID, map[string]any{"stopReason": "end_turn"})
}

func updateParams(sessionID string, update map[string]any) map[string]any {
	return map[string]any{"sessionId": sessionID, "update": update}
}

func chunkUpdate(kind, text string) map[string]any {
	return map[string]any{
		"sessionUpdate": kind,
		"content":       map[string]any{"type": "text", "text": text},
	}
}

func argumentsOrEmpty(arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		return "{}"
	}
	return arguments
}

// contentBlock is a prompt content block. Text blocks and resource links
// are handled; other kinds are ignored.
type contentBlock struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// Inline resource content larger than this is truncated.
const maxResourceBytes = 50000

// extractUserText flattens prompt content blocks into the user message.
// Resource links with a file:// URI are inlined, truncated when large;
// other resources contribute their metadata only.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			var sb strings.Builder
			fmt.Fprintf(&sb, "=== Resource: %s ===\n", b.Name)
			if b.Title != "" {
				fmt.Fprintf(&sb, "Title: %s\n", b.Title)
			}
			if b.Description != "" {
				fmt.Fprintf(&sb, "Description: %s\n", b.Description)
			}
			fmt.Fprintf(&sb, "URI: %s\n", b.URI)
			if b.MimeType != "" {
				fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
			}

			if strings.HasPrefix(b.URI, "file://") {
				content, err := readFileURI(b.URI)
				if err != nil {
					fmt.Fprintf(&sb, "\n[Error reading file: %v]\n", err)
				} else {
					if len(content) > maxResourceBytes {
						content = content[:maxResourceBytes] + "\n\n[... truncated ...]"
					}
					fmt.Fprintf(&sb, "\n--- File Contents ---\n%s\n--- End of File ---\n", content)
				}
			} else {
				sb.WriteString("\n[External resource - content not available]\n")
			}
			sb.WriteString("=== End Resource ===\n")
			parts = append(parts, sb.String())
		}
	}
	return strings.Join(parts, "\n")
}

func readFileURI(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI")
	}
	if parsed.Scheme != "file" {
		return "", errors.New("unsupported URI scheme '%s'", parsed.Scheme)
	}
	content, err := os.ReadFile(parsed.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file")
	}
	return string(content), nil
}
