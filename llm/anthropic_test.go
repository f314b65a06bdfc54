package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/averau/parley/credentials"
)

func anthropicTestSettings(t *testing.T, baseURL string) Settings {
	t.Helper()
	store := credentials.NewMemStore()
	if err := store.Store("anthropic", "", "test-key"); err != nil {
		t.Fatalf("store credential: %v", err)
	}
	return Settings{Model: "claude-3-5-sonnet-latest", BaseURL: baseURL, Credentials: store}
}

const anthropicToolUseBody = `{
	"id": "msg_01",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-5-sonnet-latest",
	"content": [
		{"type": "text", "text": "Checking the weather."},
		{"type": "tool_use", "id": "toolu_01", "name": "get_weather", "input": {"city":"Paris"}}
	],
	"stop_reason": "tool_use",
	"usage": {"input_tokens": 10, "output_tokens": 20}
}`

const anthropicTextBody = `{
	"id": "msg_02",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-5-sonnet-latest",
	"content": [{"type": "text", "text": "It is sunny in Paris."}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 10, "output_tokens": 5}
}`

func TestAnthropicChatUnconfigured(t *testing.T) {
	p := NewAnthropicProvider()
	req := Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}

	if _, err := p.Chat(context.Background(), req); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := p.GenerateTextWithToolResults(context.Background(), req); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAnthropicConfigureMissingCredential(t *testing.T) {
	p := NewAnthropicProvider()
	err := p.Configure(context.Background(), Settings{
		Model:       "claude-3-5-sonnet-latest",
		Credentials: credentials.NewMemStore(),
	})
	if err == nil {
		t.Fatal("expected configure to fail without a credential")
	}
	var missing *credentials.MissingError
	if !errors.As(err, &missing) {
		t.Errorf("expected a MissingError, got %v", err)
	}

	// A failed configure leaves the provider unconfigured.
	req := Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}
	if _, err := p.Chat(context.Background(), req); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured after failed configure, got %v", err)
	}
}

func TestAnthropicChatTranslatesToolUse(t *testing.T) {
	var gotRequest map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(anthropicToolUseBody))
	}))
	defer server.Close()

	p := NewAnthropicProvider()
	if err := p.Configure(context.Background(), anthropicTestSettings(t, server.URL)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	resp, err := p.Chat(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a weather bot."},
			{Role: RoleUser, Content: "Weather in Paris?"},
		},
		Tools: []Tool{{
			Name:        "get_weather",
			Description: "Look up current weather",
			ParameterSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"city"},
			},
		}},
		ToolChoice: &ToolChoice{Mode: ToolChoiceAuto},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp.Error)
	}
	if resp.Content != "Checking the weather." {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "toolu_01" || call.Name != "get_weather" {
		t.Errorf("unexpected tool call: %+v", call)
	}
	if !strings.Contains(call.Arguments, "Paris") {
		t.Errorf("arguments should carry the raw input, got %q", call.Arguments)
	}

	// The wire request carries the translated tools and choice.
	if gotRequest["system"] == nil {
		t.Error("system prompt was not hoisted")
	}
	tools, _ := gotRequest["tools"].([]interface{})
	if len(tools) != 1 {
		t.Fatalf("expected one tool on the wire, got %v", gotRequest["tools"])
	}
	tool := tools[0].(map[string]interface{})
	if tool["name"] != "get_weather" {
		t.Errorf("unexpected wire tool: %v", tool)
	}
	choice, _ := gotRequest["tool_choice"].(map[string]interface{})
	if choice["type"] != "auto" {
		t.Errorf("unexpected wire tool choice: %v", gotRequest["tool_choice"])
	}
}

func TestAnthropicChatTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"no good"}}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider()
	if err := p.Configure(context.Background(), anthropicTestSettings(t, server.URL)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	resp, err := p.Chat(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("transport failures must not surface as errors, got %v", err)
	}
	if resp.Success {
		t.Fatal("expected an unsuccessful response")
	}
	if resp.Error == nil || resp.Error.Message == "" {
		t.Errorf("expected an error payload, got %+v", resp.Error)
	}
}

func TestAnthropicToolResultInjection(t *testing.T) {
	var gotRequest map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(anthropicTextBody))
	}))
	defer server.Close()

	p := NewAnthropicProvider()
	if err := p.Configure(context.Background(), anthropicTestSettings(t, server.URL)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	resp, err := p.GenerateTextWithToolResults(context.Background(), Request{
		Messages: []Message{
			{Role: RoleUser, Content: "Weather in Paris?"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{
				ID: "toolu_01", Name: "get_weather", Arguments: `{"city":"Paris"}`,
			}}},
		},
		ToolOutputs: []ToolOutput{{CallID: "toolu_01", Output: `{"temp":"21C"}`}},
	})
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if !resp.Success || resp.Content != "It is sunny in Paris." {
		t.Fatalf("unexpected response: %+v", resp)
	}

	messages, _ := gotRequest["messages"].([]interface{})
	if len(messages) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(messages))
	}
	last := messages[2].(map[string]interface{})
	if last["role"] != "user" {
		t.Errorf("tool results must ride a user message, got %v", last["role"])
	}
	blocks, _ := last["content"].([]interface{})
	if len(blocks) != 1 {
		t.Fatalf("expected one tool_result block, got %v", last["content"])
	}
	block := blocks[0].(map[string]interface{})
	if block["type"] != "tool_result" || block["tool_use_id"] != "toolu_01" {
		t.Errorf("unexpected tool_result block: %v", block)
	}
}

func TestAnthropicContinuationContract(t *testing.T) {
	p := NewAnthropicProvider()
	if err := p.Configure(context.Background(), anthropicTestSettings(t, "http://127.0.0.1:0")); err != nil {
		t.Fatalf("configure: %v", err)
	}

	// Both violations are detected before any network traffic.
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

func TestConvertMessagesToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "checking", ToolCalls: []ToolCall{{
			ID: "toolu_01", Name: "get_weather", Arguments: `{"city":"Paris"}`,
		}}},
		{Role: RoleTool, ToolCallID: "toolu_01", Content: "21C"},
	}

	converted, systemPrompt := convertMessagesToAnthropic(messages)
	if systemPrompt != "be brief" {
		t.Errorf("system prompt not hoisted: %q", systemPrompt)
	}
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(converted))
	}

	assistant := converted[1]
	if len(assistant.Content) != 2 {
		t.Fatalf("expected text and tool_use blocks, got %d", len(assistant.Content))
	}
	if assistant.Content[0].OfText == nil || assistant.Content[0].OfText.Text != "checking" {
		t.Errorf("missing text block: %+v", assistant.Content[0])
	}
	if assistant.Content[1].OfToolUse == nil || assistant.Content[1].OfToolUse.ID != "toolu_01" {
		t.Errorf("missing tool_use block: %+v", assistant.Content[1])
	}

	toolResult := converted[2]
	if toolResult.Content[0].OfToolResult == nil || toolResult.Content[0].OfToolResult.ToolUseID != "toolu_01" {
		t.Errorf("missing tool_result block: %+v", toolResult.Content[0])
	}
}

func TestConvertToolToAnthropic(t *testing.T) {
	tool := Tool{
		Name:        "get_weather",
		Description: "Look up current weather",
		ParameterSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
			},
			"required":             []interface{}{"city"},
			"additionalProperties": false,
		},
	}

	param := convertToolToAnthropic(tool)
	if param.Name != "get_weather" {
		t.Errorf("unexpected name: %s", param.Name)
	}
	props, ok := param.InputSchema.Properties.(map[string]interface{})
	if !ok || props["city"] == nil {
		t.Errorf("properties not carried over: %+v", param.InputSchema.Properties)
	}
	if len(param.InputSchema.Required) != 1 || param.InputSchema.Required[0] != "city" {
		t.Errorf("required not carried over: %+v", param.InputSchema.Required)
	}
	if v, ok := param.InputSchema.ExtraFields["additionalProperties"]; !ok || v != false {
		t.Errorf("extra schema fields not carried over: %+v", param.InputSchema.ExtraFields)
	}
}

func TestConvertToolChoiceToAnthropic(t *testing.T) {
	if choice, err := convertToolChoiceToAnthropic(nil); err != nil || choice != nil {
		t.Errorf("nil choice should pass through, got %v %v", choice, err)
	}

	auto, err := convertToolChoiceToAnthropic(&ToolChoice{Mode: ToolChoiceAuto})
	if err != nil || auto.OfAuto == nil {
		t.Errorf("auto not translated: %+v %v", auto, err)
	}
	required, err := convertToolChoiceToAnthropic(&ToolChoice{Mode: ToolChoiceRequired})
	if err != nil || required.OfAny == nil {
		t.Errorf("required not translated: %+v %v", required, err)
	}
	none, err := convertToolChoiceToAnthropic(&ToolChoice{Mode: ToolChoiceNone})
	if err != nil || none.OfNone == nil {
		t.Errorf("none not translated: %+v %v", none, err)
	}
	specific, err := convertToolChoiceToAnthropic(&ToolChoice{Mode: ToolChoiceSpecific, ToolName: "get_weather"})
	if err != nil || specific.OfTool == nil || specific.OfTool.Name != "get_weather" {
		t.Errorf("specific not translated: %+v %v", specific, err)
	}

	if _, err := convertToolChoiceToAnthropic(&ToolChoice{Mode: ToolChoiceSpecific}); err == nil {
		t.Error("expected invalid specific choice to fail")
	}
}
