// Package llm defines the vendor-neutral conversation model and the Provider
// interface, with one adapter per supported vendor. Adapters translate the
// canonical shapes to and from their vendor's wire format; anything a vendor
// needs that the canonical model cannot express stays inside its adapter.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/averau/parley/credentials"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is a single turn in a conversation. The ordered message list is the
// sole conversational state; there is no hidden session object. A message with
// RoleTool carries the ToolCallID of the call it answers.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Tool describes a callable tool offered to the model. ParameterSchema is a
// JSON-schema-like object ({"type":"object","properties":...,"required":...}).
// Tools are immutable once passed into a request.
type Tool struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	ParameterSchema map[string]interface{} `json:"parameters,omitempty"`
}

// ToolCall is a model-requested tool invocation. ID correlates the later
// ToolOutput; it is vendor-assigned, or synthesized when the vendor omits one.
// Arguments holds the JSON-encoded argument object.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// DecodeArguments parses the JSON argument payload into a map. An empty
// payload decodes to an empty map; some vendors emit "" for no-arg calls.
func (tc ToolCall) DecodeArguments() (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if tc.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("tool call %s: malformed arguments: %w", tc.Name, err)
	}
	return args, nil
}

// SynthesizeCallID builds a stable id for vendors that do not assign one.
func SynthesizeCallID(index int, name string) string {
	return fmt.Sprintf("call_%d_%s", index, name)
}

// ToolOutput is the result of executing one ToolCall, correlated by CallID.
// Pairing is order-independent within a round.
type ToolOutput struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ErrorOutput wraps a tool failure as an output payload the model can read.
// Tool failures are data, not control flow.
func ErrorOutput(callID, message string) ToolOutput {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return ToolOutput{CallID: callID, Output: string(payload)}
}

// ToolChoiceMode selects how strongly the model is steered toward tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"     // model decides
	ToolChoiceNone     ToolChoiceMode = "none"     // no tool use
	ToolChoiceRequired ToolChoiceMode = "required" // must call some tool
	ToolChoiceSpecific ToolChoiceMode = "specific" // must call ToolName
)

// ToolChoice steers tool selection. Vendors disagree on what is expressible;
// adapters translate what they can and silently omit the rest.
type ToolChoice struct {
	Mode     ToolChoiceMode
	ToolName string // required when Mode is ToolChoiceSpecific
}

// Validate reports a malformed tool choice.
func (tc *ToolChoice) Validate() error {
	switch tc.Mode {
	case ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		return nil
	case ToolChoiceSpecific:
		if tc.ToolName == "" {
			return errors.New("tool choice 'specific' requires a tool name")
		}
		return nil
	default:
		return fmt.Errorf("invalid tool choice mode %q", tc.Mode)
	}
}

// Request is the canonical, vendor-neutral model invocation. ToolOutputs is
// only consulted by GenerateTextWithToolResults, which re-injects them as the
// vendor's tool-result shape. Model, Temperature and MaxTokens override the
// configured defaults when set.
type Request struct {
	Messages    []Message
	Tools       []Tool
	ToolChoice  *ToolChoice
	Model       string
	Temperature *float64
	MaxTokens   int
	ToolOutputs []ToolOutput
}

// ResponseError describes a transport or vendor failure.
type ResponseError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Response is the canonical result of one model invocation. Success=false is
// terminal for that invocation; non-empty ToolCalls means the caller must
// execute tools before continuing.
type Response struct {
	Success   bool
	Content   string
	ToolCalls []ToolCall
	Error     *ResponseError
}

// Failure wraps a transport or vendor error as an unsuccessful response.
func Failure(err error) Response {
	return Response{Success: false, Error: &ResponseError{Message: err.Error()}}
}

// AssistantMessage converts the response into the assistant turn it
// represents, for appending to the conversation.
func (r Response) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: r.Content, ToolCalls: r.ToolCalls}
}

// Contract violation sentinels. These indicate caller bugs and propagate as
// errors, unlike vendor failures which are returned as Response data.
var (
	ErrNotConfigured = errors.New("provider not configured")
	ErrNoMessages    = errors.New("request must contain messages")
	ErrNoToolCalls   = errors.New("prior assistant turn has no tool calls to continue")
)

// Settings configures a provider instance. It is a closed struct; anything a
// vendor needs that is not named here belongs inside that vendor's adapter.
type Settings struct {
	Model       string
	Account     string // logical account for credential resolution
	BaseURL     string // OpenAI-compatible endpoint override
	Region      string // AWS region for Bedrock
	Temperature *float64
	MaxTokens   int
	Credentials credentials.Resolver
	Logger      *slog.Logger
}

func (s Settings) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Provider is the single capability set every vendor adapter implements.
// Configure moves an instance from Unconfigured to Configured and may be
// called again to re-target a model or account; the chat-family methods fail
// with ErrNotConfigured until it succeeds. Chat and
// GenerateTextWithToolResults return errors only for contract violations;
// transport and vendor failures come back as Response{Success: false}.
type Provider interface {
	Name() string
	Configure(ctx context.Context, settings Settings) error
	Chat(ctx context.Context, req Request) (Response, error)
	GenerateTextWithToolResults(ctx context.Context, req Request) (Response, error)
}

// continuationTurn validates a request carrying tool outputs and returns the
// assistant turn being continued. The turn is the last assistant message; it
// must exist and must have emitted tool calls.
func continuationTurn(req Request) (*Message, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("cannot continue with tool results: %w", ErrNoMessages)
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != RoleAssistant {
			continue
		}
		if len(req.Messages[i].ToolCalls) == 0 {
			return nil, fmt.Errorf("cannot continue with tool results: %w", ErrNoToolCalls)
		}
		return &req.Messages[i], nil
	}
	return nil, fmt.Errorf("cannot continue with tool results: %w", ErrNoToolCalls)
}

// callName resolves a ToolOutput back to the name of the call it answers.
// Gemini correlates tool results by function name rather than id.
func callName(turn *Message, out ToolOutput) string {
	for _, tc := range turn.ToolCalls {
		if tc.ID == out.CallID {
			return tc.Name
		}
	}
	return ""
}
