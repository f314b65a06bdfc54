package llm

import (
	"context"
	"log/slog"

	"github.com/averau/parley/errors"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIProvider talks to the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature *float64
	maxTokens   int
	logger      *slog.Logger
}

// NewOpenAIProvider creates an unconfigured OpenAI provider.
func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Configure resolves the API key and builds the SDK client. Settings may
// carry a BaseURL for OpenAI-compatible endpoints.
func (p *OpenAIProvider) Configure(ctx context.Context, settings Settings) error {
	logger := settings.logger()
	if settings.Credentials == nil {
		return errors.New("openai: no credential resolver supplied")
	}
	apiKey, err := settings.Credentials.Resolve(p.Name(), settings.Account)
	if err != nil {
		logger.Error("provider configuration failed", "provider", p.Name(), "error", err)
		return errors.Wrapf(err, "openai: configure")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if settings.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(settings.BaseURL))
	}
	// NewClient returns a value, not a pointer.
	c := openai.NewClient(opts...)

	p.client = &c
	p.model = settings.Model
	p.temperature = settings.Temperature
	p.maxTokens = settings.MaxTokens
	p.logger = logger
	logger.Info("provider configured", "provider", p.Name(), "model", p.model)
	return nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, req Request) (Response, error) {
	if p.client == nil {
		return Response{}, errors.Wrapf(ErrNotConfigured, "openai")
	}
	params, err := p.buildParams(req)
	if err != nil {
		return Response{}, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		p.logger.Warn("openai request failed", "error", err)
		return Failure(err), nil
	}
	return processOpenAIChatCompletion(resp), nil
}

func (p *OpenAIProvider) GenerateTextWithToolResults(ctx context.Context, req Request) (Response, error) {
	if p.client == nil {
		return Response{}, errors.Wrapf(ErrNotConfigured, "openai")
	}
	if _, err := continuationTurn(req); err != nil {
		return Response{}, err
	}
	return p.Chat(ctx, req)
}

func (p *OpenAIProvider) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	messages := convertMessagesToOpenAI(req.Messages)
	// Each tool output becomes its own tool-role message keyed by call id.
	for _, out := range req.ToolOutputs {
		messages = append(messages, openai.ToolMessage(out.Output, out.CallID))
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if len(req.Tools) > 0 {
		params.Tools = convertToolsToOpenAI(req.Tools)
	}
	choice, err := convertToolChoiceToOpenAI(req.ToolChoice)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	if choice != nil {
		params.ToolChoice = *choice
	}

	temperature := req.Temperature
	if temperature == nil {
		temperature = p.temperature
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	return params, nil
}

func convertMessagesToOpenAI(messages []Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnion
				for _, tc := range msg.ToolCalls {
					arguments := tc.Arguments
					if arguments == "" {
						arguments = "{}"
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      tc.Name,
							Arguments: arguments,
						},
					})
				}
				assistantMessage.ToolCalls = toolCalls
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case RoleTool:
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case RoleUser:
			fallthrough
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

func convertToolsToOpenAI(ts []Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		params := openai.FunctionParameters(t.ParameterSchema)
		if params == nil {
			params = openai.FunctionParameters{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		openAITools = append(openAITools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  params,
		}))
	}
	return openAITools
}

func convertToolChoiceToOpenAI(choice *ToolChoice) (*openai.ChatCompletionToolChoiceOptionUnionParam, error) {
	if choice == nil {
		return nil, nil
	}
	if err := choice.Validate(); err != nil {
		return nil, errors.Wrapf(err, "openai")
	}
	switch choice.Mode {
	case ToolChoiceAuto:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}, nil
	case ToolChoiceNone:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}, nil
	case ToolChoiceRequired:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}, nil
	default:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.ToolName},
			},
		}, nil
	}
}

// processOpenAIChatCompletion extracts text and tool calls from a completion.
// Tool call ids come from the API; a missing id gets a synthesized one.
func processOpenAIChatCompletion(resp *openai.ChatCompletion) Response {
	if len(resp.Choices) == 0 {
		return Response{Success: false, Error: &ResponseError{Message: "response contained no choices"}}
	}
	choice := resp.Choices[0].Message

	var toolCalls []ToolCall
	for i, tc := range choice.ToolCalls {
		id := tc.ID
		if id == "" {
			id = SynthesizeCallID(i, tc.Function.Name)
		}
		arguments := tc.Function.Arguments
		if arguments == "" {
			arguments = "{}"
		}
		toolCalls = append(toolCalls, ToolCall{ID: id, Name: tc.Function.Name, Arguments: arguments})
	}
	return Response{Success: true, Content: choice.Content, ToolCalls: toolCalls}
}
