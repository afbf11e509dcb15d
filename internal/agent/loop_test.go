package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/lunarhue/sidekick/internal/providers"
	"github.com/lunarhue/sidekick/internal/tools"
)

// echoTool returns its "value" argument, recording calls.
type echoTool struct {
	name  string
	calls int
}

func (e *echoTool) Name() string                { return e.name }
func (e *echoTool) Description() string         { return "echo" }
func (e *echoTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (e *echoTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	e.calls++
	if v, ok := args["value"].(string); ok {
		return tools.NewResult(v)
	}
	return tools.ErrorResult("missing value")
}

func newTestLoop(fp *fakeProvider, reg *tools.Registry) *Loop {
	return NewLoop(LoopConfig{
		Provider:      fp,
		Registry:      reg,
		UserID:        "U111",
		MaxIterations: 10,
	})
}

func TestRunStopsWithoutToolCalls(t *testing.T) {
	fp := &fakeProvider{responses: []*providers.ChatResponse{textResponse("nothing urgent")}}
	loop := newTestLoop(fp, tools.NewRegistry())

	res, err := loop.Run(context.Background(), "what's up?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "nothing urgent" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}

	// The request carried the system prompt with the user context.
	if !strings.Contains(fp.requests[0].System, "User ID: U111") {
		t.Error("system prompt missing user context")
	}
}

func TestRunExecutesToolsThenAnswers(t *testing.T) {
	reg := tools.NewRegistry()
	echo := &echoTool{name: "echo"}
	reg.Register(echo)

	fp := &fakeProvider{responses: []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCall{
				{ID: "t1", Name: "echo", Arguments: map[string]any{"value": "one"}},
				{ID: "t2", Name: "echo", Arguments: map[string]any{"value": "two"}},
			},
			Usage: &providers.Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
		},
		textResponse("done"),
	}}
	loop := newTestLoop(fp, reg)

	res, err := loop.Run(context.Background(), "run the echoes")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "done" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", res.Iterations)
	}
	if echo.calls != 2 {
		t.Errorf("tool calls = %d, want 2", echo.calls)
	}

	// Second request sees tool results, in call order.
	msgs := fp.requests[1].Messages
	var toolMsgs []providers.Message
	for _, m := range msgs {
		if m.Role == "tool" {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("tool messages = %d, want 2", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "t1" || toolMsgs[0].Content != "one" {
		t.Errorf("first tool result = %+v", toolMsgs[0])
	}
	if toolMsgs[1].ToolCallID != "t2" || toolMsgs[1].Content != "two" {
		t.Errorf("second tool result = %+v", toolMsgs[1])
	}
}

func TestRunIterationCap(t *testing.T) {
	reg := tools.NewRegistry()
	echo := &echoTool{name: "echo"}
	reg.Register(echo)

	// The model never stops asking for tools.
	fp := &fakeProvider{responses: []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls:    []providers.ToolCall{{ID: "t", Name: "echo", Arguments: map[string]any{"value": "loop"}}},
			Usage:        &providers.Usage{TotalTokens: 1},
		},
	}}
	loop := NewLoop(LoopConfig{Provider: fp, Registry: reg, MaxIterations: 3})

	res, err := loop.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want cap of 3", res.Iterations)
	}
	if echo.calls != 3 {
		t.Errorf("tool calls = %d, want 3", echo.calls)
	}
	if res.Content == "" {
		t.Error("capped run should still return content")
	}
}

func TestRunUnknownToolFeedsErrorBack(t *testing.T) {
	fp := &fakeProvider{responses: []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls:    []providers.ToolCall{{ID: "t1", Name: "no_such_tool", Arguments: map[string]any{}}},
			Usage:        &providers.Usage{TotalTokens: 1},
		},
		textResponse("sorry, wrong tool"),
	}}
	loop := newTestLoop(fp, tools.NewRegistry())

	res, err := loop.Run(context.Background(), "try it")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "sorry, wrong tool" {
		t.Errorf("content = %q", res.Content)
	}

	msgs := fp.requests[1].Messages
	found := false
	for _, m := range msgs {
		if m.Role == "tool" && m.ToolIsError && strings.Contains(m.Content, "unknown tool") {
			found = true
		}
	}
	if !found {
		t.Error("unknown-tool error not fed back to the model")
	}
}

func TestRunAccumulatesUsage(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&echoTool{name: "echo"})

	fp := &fakeProvider{responses: []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls:    []providers.ToolCall{{ID: "t1", Name: "echo", Arguments: map[string]any{"value": "x"}}},
			Usage:        &providers.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
		},
		{Content: "ok", FinishReason: "stop", Usage: &providers.Usage{PromptTokens: 20, CompletionTokens: 3, TotalTokens: 23}},
	}}
	loop := newTestLoop(fp, reg)

	res, err := loop.Run(context.Background(), "count")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Usage.TotalTokens != 35 {
		t.Errorf("total tokens = %d, want 35", res.Usage.TotalTokens)
	}
}
