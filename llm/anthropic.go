package llm

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/averau/parley/errors"
)

const defaultMaxTokens = 4096

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client      *anthropic.Client
	model       string
	temperature *float64
	maxTokens   int
	logger      *slog.Logger
}

// NewAnthropicProvider creates an unconfigured Anthropic provider.
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Configure resolves the API key and builds the SDK client. A failed resolve
// leaves the provider unconfigured; calling again with new settings re-targets
// the model or account.
func (p *AnthropicProvider) Configure(ctx context.Context, settings Settings) error {
	logger := settings.logger()
	if settings.Credentials == nil {
		return errors.New("anthropic: no credential resolver supplied")
	}
	apiKey, err := settings.Credentials.Resolve(p.Name(), settings.Account)
	if err != nil {
		logger.Error("provider configuration failed", "provider", p.Name(), "error", err)
		return errors.Wrapf(err, "anthropic: configure")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if settings.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(settings.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	p.client = &client
	p.model = settings.Model
	p.temperature = settings.Temperature
	p.maxTokens = settings.MaxTokens
	p.logger = logger
	logger.Info("provider configured", "provider", p.Name(), "model", p.model)
	return nil
}

// Chat sends one canonical request and translates the reply. Transport and
// API failures come back as an unsuccessful Response, never as an error.
func (p *AnthropicProvider) Chat(ctx context.Context, req Request) (Response, error) {
	if p.client == nil {
		return Response{}, errors.Wrapf(ErrNotConfigured, "anthropic")
	}
	params, err := p.buildParams(req)
	if err != nil {
		return Response{}, err
	}
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		p.logger.Warn("anthropic request failed", "error", err)
		return Failure(err), nil
	}
	return processAnthropicMessage(resp), nil
}

// GenerateTextWithToolResults continues the conversation after tool
// execution. The assistant turn carrying the tool calls must already be the
// trailing assistant message; its outputs ride in req.ToolOutputs and are
// re-injected as tool_result blocks.
func (p *AnthropicProvider) GenerateTextWithToolResults(ctx context.Context, req Request) (Response, error) {
	if p.client == nil {
		return Response{}, errors.Wrapf(ErrNotConfigured, "anthropic")
	}
	if _, err := continuationTurn(req); err != nil {
		return Response{}, err
	}
	return p.Chat(ctx, req)
}

func (p *AnthropicProvider) buildParams(req Request) (anthropic.MessageNewParams, error) {
	messages, systemPrompt := convertMessagesToAnthropic(req.Messages)

	// Tool outputs become tool_result blocks in a single trailing user
	// message; Anthropic requires strict user/assistant alternation.
	if len(req.ToolOutputs) > 0 {
		var blocks []anthropic.ContentBlockParamUnion
		for _, out := range req.ToolOutputs {
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: out.CallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: out.Output},
					}},
				},
			})
		}
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: blocks,
		})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = p.temperature
	}
	if temperature != nil {
		params.Temperature = anthropic.Float(*temperature)
	}

	if len(req.Tools) > 0 {
		params.Tools = make([]anthropic.ToolUnionParam, len(req.Tools))
		for i, t := range req.Tools {
			toolParam := convertToolToAnthropic(t)
			params.Tools[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
		}
	}
	choice, err := convertToolChoiceToAnthropic(req.ToolChoice)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if choice != nil {
		params.ToolChoice = *choice
	}
	return params, nil
}

// convertMessagesToAnthropic maps canonical messages onto Anthropic message
// params. System messages are hoisted out into the system prompt (the last
// one wins); tool-role messages become user messages with tool_result blocks.
func convertMessagesToAnthropic(messages []Message) ([]anthropic.MessageParam, string) {
	var converted []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
		case RoleUser:
			converted = append(converted, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: msg.Content},
				})
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if tc.Arguments == "" {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						Type:  "tool_use",
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			converted = append(converted, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case RoleTool:
			converted = append(converted, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: msg.ToolCallID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: msg.Content},
						}},
					},
				}},
			})
		}
	}
	return converted, systemPrompt
}

// convertToolToAnthropic maps a canonical tool declaration, splitting the
// JSON schema into the fields the SDK names and carrying the rest through
// ExtraFields.
func convertToolToAnthropic(t Tool) anthropic.ToolParam {
	schema := anthropic.ToolInputSchemaParam{
		Properties: schemaProperties(t.ParameterSchema),
	}
	if required := schemaRequired(t.ParameterSchema); len(required) > 0 {
		schema.Required = required
	}
	for key, value := range t.ParameterSchema {
		if key == "type" || key == "properties" || key == "required" {
			continue
		}
		if schema.ExtraFields == nil {
			schema.ExtraFields = make(map[string]any)
		}
		schema.ExtraFields[key] = value
	}
	return anthropic.ToolParam{
		Name:        t.Name,
		Description: anthropic.String(t.Description),
		InputSchema: schema,
	}
}

func convertToolChoiceToAnthropic(choice *ToolChoice) (*anthropic.ToolChoiceUnionParam, error) {
	if choice == nil {
		return nil, nil
	}
	if err := choice.Validate(); err != nil {
		return nil, errors.Wrapf(err, "anthropic")
	}
	switch choice.Mode {
	case ToolChoiceAuto:
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, nil
	case ToolChoiceRequired:
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, nil
	case ToolChoiceNone:
		none := anthropic.NewToolChoiceNoneParam()
		return &anthropic.ToolChoiceUnionParam{OfNone: &none}, nil
	default:
		union := anthropic.ToolChoiceParamOfTool(choice.ToolName)
		return &union, nil
	}
}

// processAnthropicMessage extracts text and tool calls from a reply,
// preserving block emission order. Text blocks concatenate; tool_use blocks
// keep their raw JSON input as the call arguments.
func processAnthropicMessage(resp *anthropic.Message) Response {
	var content string
	var toolCalls []ToolCall

	for i, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			id := b.ID
			if id == "" {
				id = SynthesizeCallID(i, b.Name)
			}
			arguments := string(b.Input)
			if arguments == "" {
				arguments = "{}"
			}
			toolCalls = append(toolCalls, ToolCall{ID: id, Name: b.Name, Arguments: arguments})
		}
	}
	return Response{Success: true, Content: content, ToolCalls: toolCalls}
}
