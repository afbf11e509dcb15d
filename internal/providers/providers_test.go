package providers

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"0", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHTTPErrorThrottled(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 529} {
		e := &HTTPError{Status: status}
		if !e.Throttled() {
			t.Errorf("status %d should be throttled", status)
		}
	}
	for _, status := range []int{400, 401, 403, 404} {
		e := &HTTPError{Status: status}
		if e.Throttled() {
			t.Errorf("status %d should not be throttled", status)
		}
	}
}

func TestAnthropicBuildRequestBody(t *testing.T) {
	p := NewAnthropicProvider("key", WithAnthropicModel("test-model"))

	body, err := p.buildRequestBody(ChatRequest{
		System: "be helpful",
		Messages: []Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "t1", Name: "get_status", Arguments: map[string]any{"hours_back": 24}}}},
			{Role: "tool", ToolCallID: "t1", Content: "{\"items\":[]}"},
		},
		Tools: []ToolDefinition{{Name: "get_status", Description: "d", InputSchema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("buildRequestBody: %v", err)
	}

	if body["model"] != "test-model" {
		t.Errorf("model = %v, want test-model", body["model"])
	}
	if body["system"] != "be helpful" {
		t.Errorf("system = %v", body["system"])
	}

	msgs := body["messages"].([]map[string]interface{})
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}

	// Tool result becomes a user-role tool_result block.
	toolMsg := msgs[2]
	if toolMsg["role"] != "user" {
		t.Errorf("tool result role = %v, want user", toolMsg["role"])
	}
	blocks := toolMsg["content"].([]interface{})
	block := blocks[0].(map[string]interface{})
	if block["type"] != "tool_result" || block["tool_use_id"] != "t1" {
		t.Errorf("tool result block = %v", block)
	}

	// Assistant tool_use block carries the arguments.
	asst := msgs[1]["content"].([]interface{})
	use := asst[0].(map[string]interface{})
	if use["type"] != "tool_use" || use["name"] != "get_status" {
		t.Errorf("tool_use block = %v", use)
	}
}

func TestAnthropicParseResponse(t *testing.T) {
	p := NewAnthropicProvider("key")
	raw := `{
		"content": [
			{"type": "text", "text": "checking now"},
			{"type": "tool_use", "id": "t1", "name": "get_status", "input": {"hours_back": 24}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`

	resp, err := p.parseResponse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if resp.Content != "checking now" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q, want tool_calls", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "get_status" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if got := resp.ToolCalls[0].Arguments["hours_back"]; got != float64(24) {
		t.Errorf("hours_back = %v", got)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestOpenAIBuildRequestBody(t *testing.T) {
	p := NewOpenAIProvider("key", "", "gpt-test", 0)

	body, err := p.buildRequestBody(ChatRequest{
		System: "be helpful",
		Messages: []Message{
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "c1", Name: "search", Arguments: map[string]any{"query": "deploy"}}}},
			{Role: "tool", ToolCallID: "c1", Content: "ok"},
		},
	})
	if err != nil {
		t.Fatalf("buildRequestBody: %v", err)
	}

	msgs := body["messages"].([]map[string]interface{})
	if msgs[0]["role"] != "system" {
		t.Errorf("first message role = %v, want system", msgs[0]["role"])
	}

	// Assistant message with tool calls omits empty content.
	asst := msgs[1]
	if _, ok := asst["content"]; ok {
		t.Error("assistant message with tool calls should omit empty content")
	}
	calls := asst["tool_calls"].([]map[string]interface{})
	fn := calls[0]["function"].(map[string]interface{})
	var args map[string]any
	if err := json.Unmarshal([]byte(fn["arguments"].(string)), &args); err != nil {
		t.Fatalf("arguments not a JSON string: %v", err)
	}
	if args["query"] != "deploy" {
		t.Errorf("query = %v", args["query"])
	}
}

func TestOpenAIParseResponse(t *testing.T) {
	p := NewOpenAIProvider("key", "", "", 0)
	raw := `{
		"choices": [{
			"message": {
				"content": "",
				"tool_calls": [{"id": "c1", "function": {"name": "search", "arguments": "{\"query\": \"deploy\"}"}}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
	}`

	resp, err := p.parseResponse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Arguments["query"] != "deploy" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
}
