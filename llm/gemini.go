package llm

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/averau/parley/errors"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider talks to the Google Gemini API.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature *float64
	maxTokens   int
	logger      *slog.Logger
}

// NewGeminiProvider creates an unconfigured Gemini provider.
func NewGeminiProvider() *GeminiProvider {
	return &GeminiProvider{}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Configure(ctx context.Context, settings Settings) error {
	logger := settings.logger()
	if settings.Credentials == nil {
		return errors.New("gemini: no credential resolver supplied")
	}
	apiKey, err := settings.Credentials.Resolve(p.Name(), settings.Account)
	if err != nil {
		logger.Error("provider configuration failed", "provider", p.Name(), "error", err)
		return errors.Wrapf(err, "gemini: configure")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		logger.Error("provider configuration failed", "provider", p.Name(), "error", err)
		return errors.Wrapf(err, "gemini: create client")
	}

	p.client = client
	p.model = settings.Model
	p.temperature = settings.Temperature
	p.maxTokens = settings.MaxTokens
	p.logger = logger
	logger.Info("provider configured", "provider", p.Name(), "model", p.model)
	return nil
}

func (p *GeminiProvider) Chat(ctx context.Context, req Request) (Response, error) {
	if p.client == nil {
		return Response{}, errors.Wrapf(ErrNotConfigured, "gemini")
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.model
	}
	model := p.client.GenerativeModel(modelName)

	if len(req.Tools) > 0 {
		model.Tools = convertToolsToGemini(req.Tools)
	}
	toolConfig, err := convertToolChoiceToGemini(req.ToolChoice)
	if err != nil {
		return Response{}, err
	}
	if toolConfig != nil {
		model.ToolConfig = toolConfig
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = p.temperature
	}
	if temperature != nil {
		model.SetTemperature(float32(*temperature))
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	history, systemPrompt := convertMessagesToGemini(req.Messages)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	if len(req.ToolOutputs) > 0 {
		history = append(history, &genai.Content{
			Role:  "user",
			Parts: geminiToolResultParts(lastToolCallTurn(req.Messages), req.ToolOutputs),
		})
	}
	if len(history) == 0 {
		return Response{}, errors.Wrapf(ErrNoMessages, "gemini")
	}

	// The trailing content is the new prompt; everything before it is history.
	last := history[len(history)-1]
	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		p.logger.Warn("gemini request failed", "error", err)
		return Failure(err), nil
	}
	return processGeminiCandidates(resp), nil
}

func (p *GeminiProvider) GenerateTextWithToolResults(ctx context.Context, req Request) (Response, error) {
	if p.client == nil {
		return Response{}, errors.Wrapf(ErrNotConfigured, "gemini")
	}
	if _, err := continuationTurn(req); err != nil {
		return Response{}, err
	}
	return p.Chat(ctx, req)
}

// convertMessagesToGemini maps canonical messages onto Gemini contents. The
// system message is hoisted into the model's system instruction; assistant
// turns become "model" contents carrying text and function call parts; tool
// results become function response parts grouped under a "user" content.
func convertMessagesToGemini(messages []Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemPrompt string
	var lastWithCalls *Message
	lastWasToolResult := false

	for i := range messages {
		msg := messages[i]
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
			continue
		case RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args, err := tc.DecodeArguments()
				if err != nil {
					args = map[string]interface{}{"raw": tc.Arguments}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(parts) == 0 {
				continue
			}
			if len(msg.ToolCalls) > 0 {
				lastWithCalls = &messages[i]
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case RoleTool:
			part := genai.FunctionResponse{
				Name:     toolMessageName(msg, lastWithCalls),
				Response: toolOutputPayload(msg.Content),
			}
			// Consecutive tool results share one user content to keep
			// user/model alternation intact.
			if lastWasToolResult && len(contents) > 0 {
				tail := contents[len(contents)-1]
				tail.Parts = append(tail.Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
		lastWasToolResult = msg.Role == RoleTool
	}
	return contents, systemPrompt
}

// toolMessageName picks the function name a tool-role message answers. Gemini
// correlates by name, so fall back through the declared name, the call id
// lookup, and finally the raw call id.
func toolMessageName(msg Message, turn *Message) string {
	if msg.Name != "" {
		return msg.Name
	}
	if turn != nil {
		if name := callName(turn, ToolOutput{CallID: msg.ToolCallID}); name != "" {
			return name
		}
	}
	return msg.ToolCallID
}

// lastToolCallTurn finds the most recent assistant turn that emitted tool
// calls, or nil. Unlike continuationTurn it never fails; stray tool outputs
// on a plain chat degrade to id-named responses.
func lastToolCallTurn(messages []Message) *Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant && len(messages[i].ToolCalls) > 0 {
			return &messages[i]
		}
	}
	return nil
}

func geminiToolResultParts(turn *Message, outputs []ToolOutput) []genai.Part {
	parts := make([]genai.Part, 0, len(outputs))
	for _, out := range outputs {
		name := ""
		if turn != nil {
			name = callName(turn, out)
		}
		if name == "" {
			name = out.CallID
		}
		parts = append(parts, genai.FunctionResponse{
			Name:     name,
			Response: toolOutputPayload(out.Output),
		})
	}
	return parts
}

// toolOutputPayload shapes a tool output string into the JSON object Gemini
// requires. Object outputs pass through; anything else is wrapped.
func toolOutputPayload(output string) map[string]interface{} {
	payload := map[string]interface{}{}
	if err := json.Unmarshal([]byte(output), &payload); err == nil {
		return payload
	}
	return map[string]interface{}{"output": output}
}

func convertToolsToGemini(ts []Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	funcDecls := make([]*genai.FunctionDeclaration, 0, len(ts))
	for _, t := range ts {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaToGemini(t.ParameterSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// schemaToGemini converts a JSON schema map into Gemini's typed schema,
// recursing through properties and array items.
func schemaToGemini(schema map[string]interface{}) *genai.Schema {
	if len(schema) == 0 {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{Type: geminiType(schema["type"])}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]interface{}); ok {
				out.Properties[name] = schemaToGemini(sub)
			}
		}
	}
	if required := schemaRequired(schema); len(required) > 0 {
		out.Required = required
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		out.Items = schemaToGemini(items)
	}
	if enum, ok := schema["enum"].([]interface{}); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	return out
}

func geminiType(value interface{}) genai.Type {
	switch value {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	}
	return genai.TypeObject
}

func convertToolChoiceToGemini(choice *ToolChoice) (*genai.ToolConfig, error) {
	if choice == nil {
		return nil, nil
	}
	if err := choice.Validate(); err != nil {
		return nil, errors.Wrapf(err, "gemini")
	}
	config := &genai.FunctionCallingConfig{}
	switch choice.Mode {
	case ToolChoiceAuto:
		config.Mode = genai.FunctionCallingAuto
	case ToolChoiceNone:
		config.Mode = genai.FunctionCallingNone
	case ToolChoiceRequired:
		config.Mode = genai.FunctionCallingAny
	default:
		// Gemini has no direct "call this one tool" mode; Any restricted to a
		// single allowed name is the closest expression.
		config.Mode = genai.FunctionCallingAny
		config.AllowedFunctionNames = []string{choice.ToolName}
	}
	return &genai.ToolConfig{FunctionCallingConfig: config}, nil
}

// processGeminiCandidates extracts text and function calls from a response.
// Gemini assigns no call ids, so every call gets a synthesized one.
func processGeminiCandidates(resp *genai.GenerateContentResponse) Response {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{Success: false, Error: &ResponseError{Message: "response contained no candidates"}}
	}

	var content string
	var toolCalls []ToolCall
	for i, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			content += string(v)
		case genai.FunctionCall:
			arguments := "{}"
			if len(v.Args) > 0 {
				if encoded, err := json.Marshal(v.Args); err == nil {
					arguments = string(encoded)
				}
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:        SynthesizeCallID(i, v.Name),
				Name:      v.Name,
				Arguments: arguments,
			})
		}
	}
	return Response{Success: true, Content: content, ToolCalls: toolCalls}
}
