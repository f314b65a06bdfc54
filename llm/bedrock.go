package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/averau/parley/errors"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockProvider talks to Anthropic models hosted on AWS Bedrock. The
// request body is the raw Anthropic-on-Bedrock JSON dialect rather than an
// SDK-typed payload; Bedrock passes it through to the model unchanged.
type BedrockProvider struct {
	client      *bedrockruntime.Client
	model       string
	temperature *float64
	maxTokens   int
	logger      *slog.Logger
}

// NewBedrockProvider creates an unconfigured Bedrock provider.
func NewBedrockProvider() *BedrockProvider {
	return &BedrockProvider{}
}

func (p *BedrockProvider) Name() string { return "bedrock" }

// Configure builds the Bedrock runtime client. A stored credential of the
// form "access_key_id:secret_access_key" takes precedence; otherwise the
// ambient AWS chain (environment, shared config) is used. Credentials are
// retrieved once up front so a misconfigured chain fails here, not on the
// first chat.
func (p *BedrockProvider) Configure(ctx context.Context, settings Settings) error {
	logger := settings.logger()
	if settings.Credentials == nil {
		return errors.New("bedrock: no credential resolver supplied")
	}

	var loadOpts []func(*config.LoadOptions) error
	if settings.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(settings.Region))
	}
	if keypair, err := settings.Credentials.Resolve(p.Name(), settings.Account); err == nil {
		id, secret, ok := strings.Cut(keypair, ":")
		if !ok {
			return errors.New("bedrock: stored credential must be access_key_id:secret_access_key")
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(id, secret, ""),
		))
	} else {
		logger.Debug("no stored bedrock credential, using default AWS chain", "error", err)
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		logger.Error("provider configuration failed", "provider", p.Name(), "error", err)
		return errors.Wrapf(err, "bedrock: load aws config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		logger.Error("provider configuration failed", "provider", p.Name(), "error", err)
		return errors.Wrapf(err, "bedrock: resolve aws credentials")
	}

	var clientOpts []func(*bedrockruntime.Options)
	if settings.BaseURL != "" {
		endpoint := settings.BaseURL
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	p.client = bedrockruntime.NewFromConfig(cfg, clientOpts...)
	p.model = settings.Model
	p.temperature = settings.Temperature
	p.maxTokens = settings.MaxTokens
	p.logger = logger
	logger.Info("provider configured", "provider", p.Name(), "model", p.model, "region", cfg.Region)
	return nil
}

func (p *BedrockProvider) Chat(ctx context.Context, req Request) (Response, error) {
	if p.client == nil {
		return Response{}, errors.Wrapf(ErrNotConfigured, "bedrock")
	}
	body, err := p.buildBody(req)
	if err != nil {
		return Response{}, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("bedrock request failed", "error", err)
		return Failure(err), nil
	}
	return processBedrockBody(resp.Body), nil
}

func (p *BedrockProvider) GenerateTextWithToolResults(ctx context.Context, req Request) (Response, error) {
	if p.client == nil {
		return Response{}, errors.Wrapf(ErrNotConfigured, "bedrock")
	}
	if _, err := continuationTurn(req); err != nil {
		return Response{}, err
	}
	return p.Chat(ctx, req)
}

func (p *BedrockProvider) buildBody(req Request) ([]byte, error) {
	messages, systemPrompt := convertMessagesToBedrock(req.Messages)

	if len(req.ToolOutputs) > 0 {
		var blocks []map[string]interface{}
		for _, out := range req.ToolOutputs {
			blocks = append(blocks, map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": out.CallID,
				"content":     out.Output,
			})
		}
		messages = append(messages, map[string]interface{}{
			"role":    "user",
			"content": blocks,
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	body := map[string]interface{}{
		"anthropic_version": bedrockAnthropicVersion,
		"max_tokens":        maxTokens,
		"messages":          messages,
	}
	if systemPrompt != "" {
		body["system"] = systemPrompt
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = p.temperature
	}
	if temperature != nil {
		body["temperature"] = *temperature
	}

	if len(req.Tools) > 0 {
		var toolDecls []map[string]interface{}
		for _, t := range req.Tools {
			schema := t.ParameterSchema
			if schema == nil {
				schema = map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				}
			}
			toolDecls = append(toolDecls, map[string]interface{}{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": schema,
			})
		}
		body["tools"] = toolDecls
	}
	choice, err := convertToolChoiceToBedrock(req.ToolChoice)
	if err != nil {
		return nil, err
	}
	if choice != nil {
		body["tool_choice"] = choice
	}

	return json.Marshal(body)
}

func convertMessagesToBedrock(messages []Message) ([]map[string]interface{}, string) {
	var converted []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
		case RoleUser:
			converted = append(converted, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": msg.Content},
				},
			})
		case RoleAssistant:
			var blocks []map[string]interface{}
			if msg.Content != "" {
				blocks = append(blocks, map[string]interface{}{
					"type": "text",
					"text": msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				input, err := tc.DecodeArguments()
				if err != nil {
					input = map[string]interface{}{"raw": tc.Arguments}
				}
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			converted = append(converted, map[string]interface{}{
				"role":    "assistant",
				"content": blocks,
			})
		case RoleTool:
			converted = append(converted, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type":        "tool_result",
						"tool_use_id": msg.ToolCallID,
						"content":     msg.Content,
					},
				},
			})
		}
	}
	return converted, systemPrompt
}

// convertToolChoiceToBedrock translates the canonical choice into the
// Anthropic-on-Bedrock dialect. The dialect has no "none"; that mode is
// omitted rather than mistranslated.
func convertToolChoiceToBedrock(choice *ToolChoice) (map[string]interface{}, error) {
	if choice == nil {
		return nil, nil
	}
	if err := choice.Validate(); err != nil {
		return nil, errors.Wrapf(err, "bedrock")
	}
	switch choice.Mode {
	case ToolChoiceAuto:
		return map[string]interface{}{"type": "auto"}, nil
	case ToolChoiceRequired:
		return map[string]interface{}{"type": "any"}, nil
	case ToolChoiceNone:
		return nil, nil
	default:
		return map[string]interface{}{"type": "tool", "name": choice.ToolName}, nil
	}
}

// processBedrockBody decodes the raw response body, surfacing API errors as
// unsuccessful responses and extracting text and tool_use blocks in order.
func processBedrockBody(body []byte) Response {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return Response{Success: false, Error: &ResponseError{Message: "malformed response body: " + err.Error()}}
	}

	if rawErr, ok := response["error"]; ok && rawErr != nil {
		respErr := &ResponseError{Message: "bedrock api error"}
		if errMap, ok := rawErr.(map[string]interface{}); ok {
			if message, ok := errMap["message"].(string); ok {
				respErr.Message = message
			}
			if code, ok := errMap["type"].(string); ok {
				respErr.Code = code
			}
		}
		return Response{Success: false, Error: respErr}
	}

	contentArray, _ := response["content"].([]interface{})

	var content string
	var toolCalls []ToolCall
	callIndex := 0

	for _, item := range contentArray {
		block, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch block["type"] {
		case "text":
			if text, ok := block["text"].(string); ok {
				content += text
			}
		case "tool_use":
			name, ok := block["name"].(string)
			if !ok {
				continue
			}
			id, _ := block["id"].(string)
			if id == "" {
				id = SynthesizeCallID(callIndex, name)
			}
			arguments := "{}"
			if input, ok := block["input"].(map[string]interface{}); ok && len(input) > 0 {
				if encoded, err := json.Marshal(input); err == nil {
					arguments = string(encoded)
				}
			}
			toolCalls = append(toolCalls, ToolCall{ID: id, Name: name, Arguments: arguments})
			callIndex++
		}
	}
	return Response{Success: true, Content: content, ToolCalls: toolCalls}
}
