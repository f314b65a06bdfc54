package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/averau/parley/credentials"
)

func TestConvertMessagesToBedrock(t *testing.T) {
	// A system message is hoisted out of the message list.
	messages := []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "Hello, world!"},
	}

	result, systemPrompt := convertMessagesToBedrock(messages)
	if systemPrompt != "be brief" {
		t.Errorf("expected system prompt to be hoisted, got %q", systemPrompt)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	if result[0]["role"] != "user" {
		t.Errorf("expected role 'user', got '%s'", result[0]["role"])
	}

	// An assistant message with tool calls carries text and tool_use blocks.
	messages = []Message{
		{
			Role:    RoleAssistant,
			Content: "checking",
			ToolCalls: []ToolCall{{
				ID:        "call_1",
				Name:      "get_weather",
				Arguments: `{"city":"Paris"}`,
			}},
		},
	}

	result, _ = convertMessagesToBedrock(messages)
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	blocks := result[0]["content"].([]map[string]interface{})
	if len(blocks) != 2 {
		t.Fatalf("expected text and tool_use blocks, got %d", len(blocks))
	}
	if blocks[0]["type"] != "text" || blocks[1]["type"] != "tool_use" {
		t.Errorf("unexpected block types: %v, %v", blocks[0]["type"], blocks[1]["type"])
	}
	input := blocks[1]["input"].(map[string]interface{})
	if input["city"] != "Paris" {
		t.Errorf("arguments not decoded into input: %v", input)
	}

	// A tool-role message becomes a user message with a tool_result block.
	messages = []Message{
		{Role: RoleTool, ToolCallID: "call_1", Content: "21C"},
	}

	result, _ = convertMessagesToBedrock(messages)
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	if result[0]["role"] != "user" {
		t.Errorf("expected role 'user', got '%s'", result[0]["role"])
	}
	blocks = result[0]["content"].([]map[string]interface{})
	if blocks[0]["type"] != "tool_result" || blocks[0]["tool_use_id"] != "call_1" {
		t.Errorf("unexpected tool_result block: %v", blocks[0])
	}
}

func TestBedrockBuildBody(t *testing.T) {
	p := &BedrockProvider{maxTokens: 1024}

	body, err := p.buildBody(Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "Weather in Paris?"},
		},
		Tools: []Tool{{
			Name:        "get_weather",
			Description: "Look up current weather",
			ParameterSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
			},
		}},
		ToolChoice: &ToolChoice{Mode: ToolChoiceRequired},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("request body is not valid JSON: %v", err)
	}
	if decoded["anthropic_version"] != bedrockAnthropicVersion {
		t.Errorf("unexpected anthropic_version: %v", decoded["anthropic_version"])
	}
	if decoded["max_tokens"] != float64(1024) {
		t.Errorf("unexpected max_tokens: %v", decoded["max_tokens"])
	}
	if decoded["system"] != "be brief" {
		t.Errorf("system prompt missing: %v", decoded["system"])
	}
	tools := decoded["tools"].([]interface{})
	tool := tools[0].(map[string]interface{})
	if tool["name"] != "get_weather" || tool["input_schema"] == nil {
		t.Errorf("unexpected tool declaration: %v", tool)
	}
	choice := decoded["tool_choice"].(map[string]interface{})
	if choice["type"] != "any" {
		t.Errorf("required should map to any, got %v", choice)
	}
}

func TestBedrockBuildBodyAppendsToolResults(t *testing.T) {
	p := &BedrockProvider{}

	body, err := p.buildBody(Request{
		Messages: []Message{
			{Role: RoleUser, Content: "Weather in Paris?"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{
				ID: "call_0_get_weather", Name: "get_weather", Arguments: `{"city":"Paris"}`,
			}}},
		},
		ToolOutputs: []ToolOutput{{CallID: "call_0_get_weather", Output: `{"temp":"21C"}`}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("request body is not valid JSON: %v", err)
	}
	messages := decoded["messages"].([]interface{})
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	last := messages[2].(map[string]interface{})
	if last["role"] != "user" {
		t.Errorf("tool results must ride a user message, got %v", last["role"])
	}
	block := last["content"].([]interface{})[0].(map[string]interface{})
	if block["type"] != "tool_result" || block["tool_use_id"] != "call_0_get_weather" {
		t.Errorf("unexpected tool_result block: %v", block)
	}
}

func TestConvertToolChoiceToBedrock(t *testing.T) {
	if choice, err := convertToolChoiceToBedrock(nil); err != nil || choice != nil {
		t.Errorf("nil choice should pass through, got %v %v", choice, err)
	}

	auto, err := convertToolChoiceToBedrock(&ToolChoice{Mode: ToolChoiceAuto})
	if err != nil || auto["type"] != "auto" {
		t.Errorf("auto not translated: %v %v", auto, err)
	}
	required, err := convertToolChoiceToBedrock(&ToolChoice{Mode: ToolChoiceRequired})
	if err != nil || required["type"] != "any" {
		t.Errorf("required not translated: %v %v", required, err)
	}
	specific, err := convertToolChoiceToBedrock(&ToolChoice{Mode: ToolChoiceSpecific, ToolName: "get_weather"})
	if err != nil || specific["type"] != "tool" || specific["name"] != "get_weather" {
		t.Errorf("specific not translated: %v %v", specific, err)
	}

	// The dialect cannot express "none"; it is omitted, not mistranslated.
	none, err := convertToolChoiceToBedrock(&ToolChoice{Mode: ToolChoiceNone})
	if err != nil || none != nil {
		t.Errorf("none should be omitted, got %v %v", none, err)
	}
}

func TestProcessBedrockBody(t *testing.T) {
	body := []byte(`{
		"content": [
			{"type": "text", "text": "Checking the weather."},
			{"type": "tool_use", "id": "toolu_01", "name": "get_weather", "input": {"city": "Paris"}},
			{"type": "tool_use", "name": "get_weather", "input": {"city": "Berlin"}}
		]
	}`)

	resp := processBedrockBody(body)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp.Error)
	}
	if resp.Content != "Checking the weather." {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "toolu_01" {
		t.Errorf("vendor id not preserved: %s", resp.ToolCalls[0].ID)
	}
	// The second call has no vendor id and gets a synthesized one.
	if resp.ToolCalls[1].ID != "call_1_get_weather" {
		t.Errorf("expected synthesized id, got %s", resp.ToolCalls[1].ID)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(resp.ToolCalls[0].Arguments), &args); err != nil || args["city"] != "Paris" {
		t.Errorf("unexpected arguments: %s", resp.ToolCalls[0].Arguments)
	}
}

func TestProcessBedrockBodyError(t *testing.T) {
	resp := processBedrockBody([]byte(`{"error": {"type": "validation_error", "message": "bad request"}}`))
	if resp.Success {
		t.Fatal("expected an unsuccessful response")
	}
	if resp.Error == nil || resp.Error.Message != "bad request" || resp.Error.Code != "validation_error" {
		t.Errorf("unexpected error payload: %+v", resp.Error)
	}

	resp = processBedrockBody([]byte("not json"))
	if resp.Success || resp.Error == nil {
		t.Fatalf("expected a parse failure response, got %+v", resp)
	}
}

func TestBedrockChatUnconfigured(t *testing.T) {
	p := NewBedrockProvider()
	req := Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}

	if _, err := p.Chat(context.Background(), req); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := p.GenerateTextWithToolResults(context.Background(), req); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestBedrockConfigureStaticCredential(t *testing.T) {
	store := credentials.NewMemStore()
	if err := store.Store("bedrock", "", "AKIATEST:secret"); err != nil {
		t.Fatalf("store credential: %v", err)
	}

	p := NewBedrockProvider()
	err := p.Configure(context.Background(), Settings{
		Model:       "anthropic.claude-3-5-sonnet-20241022-v2:0",
		Region:      "eu-west-1",
		Credentials: store,
	})
	if err != nil {
		t.Fatalf("configure with static credentials: %v", err)
	}
	if p.client == nil {
		t.Fatal("expected a configured client")
	}
}

func TestBedrockConfigureRejectsMalformedCredential(t *testing.T) {
	store := credentials.NewMemStore()
	if err := store.Store("bedrock", "", "not-a-keypair"); err != nil {
		t.Fatalf("store credential: %v", err)
	}

	p := NewBedrockProvider()
	err := p.Configure(context.Background(), Settings{Region: "eu-west-1", Credentials: store})
	if err == nil {
		t.Fatal("expected configure to reject a malformed keypair")
	}
	if p.client != nil {
		t.Error("failed configure must leave the provider unconfigured")
	}
}

func TestBedrockContinuationContract(t *testing.T) {
	p := &BedrockProvider{client: new(bedrockruntime.Client)}

	_, err := p.GenerateTextWithToolResults(context.Background(), Request{})
	if !errors.Is(err, ErrNoMessages) {
		t.Fatalf("expected ErrNoMessages, got %v", err)
	}

	_, err = p.GenerateTextWithToolResults(context.Background(), Request{
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
	})
	if !errors.Is(err, ErrNoToolCalls) {
		t.Fatalf("expected ErrNoToolCalls, got %v", err)
	}
}
