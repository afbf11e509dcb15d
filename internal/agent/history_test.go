package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/lunarhue/sidekick/internal/providers"
)

// fakeProvider returns scripted responses in order, then repeats the
// last one. It records every request it receives.
type fakeProvider struct {
	responses []*providers.ChatResponse
	requests  []providers.ChatRequest
	calls     int
}

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	f.requests = append(f.requests, req)
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }
func (f *fakeProvider) Name() string         { return "fake" }

func textResponse(s string) *providers.ChatResponse {
	return &providers.ChatResponse{Content: s, FinishReason: "stop", Usage: &providers.Usage{TotalTokens: 1}}
}

func addTurn(h *History, user, assistant string) {
	h.AddUserMessage(user)
	h.AddAssistantMessage(assistant, nil)
}

func TestSummarizeBelowThresholdNoop(t *testing.T) {
	h := NewHistory(4, 6, 0)
	fp := &fakeProvider{responses: []*providers.ChatResponse{textResponse("summary")}}

	for i := 0; i < 6; i++ {
		addTurn(h, "question", "answer")
	}
	h.MaybeSummarize(context.Background(), fp)

	if fp.calls != 0 {
		t.Errorf("summarizer called %d times at threshold, want 0", fp.calls)
	}
	if h.Summary() != "" {
		t.Errorf("summary = %q, want empty", h.Summary())
	}
}

func TestSummarizeOverThreshold(t *testing.T) {
	h := NewHistory(4, 6, 0)
	fp := &fakeProvider{responses: []*providers.ChatResponse{textResponse("condensed history")}}

	for i := 0; i < 7; i++ {
		addTurn(h, "question", "answer")
	}
	h.MaybeSummarize(context.Background(), fp)

	if fp.calls != 1 {
		t.Fatalf("summarizer calls = %d, want 1", fp.calls)
	}
	if h.Summary() != "condensed history" {
		t.Errorf("summary = %q", h.Summary())
	}

	// Only the last 4 turns survive in full detail.
	msgs := h.BuildMessages()
	if got := countTurns(msgs[1:]); got != 4 {
		t.Errorf("remaining turns = %d, want 4", got)
	}

	// The summary rides in as the leading user message.
	if !strings.Contains(msgs[0].Content, "[Context Summary from earlier in conversation]") {
		t.Errorf("leading message missing summary marker: %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "condensed history") {
		t.Errorf("leading message missing summary text: %q", msgs[0].Content)
	}
}

func TestSummarizeMergesExisting(t *testing.T) {
	h := NewHistory(2, 4, 0)
	fp := &fakeProvider{responses: []*providers.ChatResponse{
		textResponse("first summary"),
		textResponse("second summary"),
		textResponse("merged summary"),
	}}

	for i := 0; i < 5; i++ {
		addTurn(h, "question", "answer")
	}
	h.MaybeSummarize(context.Background(), fp)
	if h.Summary() != "first summary" {
		t.Fatalf("summary = %q, want first summary", h.Summary())
	}

	for i := 0; i < 5; i++ {
		addTurn(h, "more", "answers")
	}
	h.MaybeSummarize(context.Background(), fp)

	// Second pass generates then merges: three calls total.
	if fp.calls != 3 {
		t.Fatalf("summarizer calls = %d, want 3", fp.calls)
	}
	if h.Summary() != "merged summary" {
		t.Errorf("summary = %q, want merged summary", h.Summary())
	}

	// The merge request carries both summaries.
	mergeReq := fp.requests[2]
	if !strings.Contains(mergeReq.Messages[0].Content, "first summary") {
		t.Error("merge prompt missing older summary")
	}
}

func TestSummaryBudgetsFollowConfiguredCap(t *testing.T) {
	h := NewHistory(2, 4, 2000)
	fp := &fakeProvider{responses: []*providers.ChatResponse{
		textResponse("first summary"),
		textResponse("second summary"),
		textResponse("merged summary"),
	}}

	for i := 0; i < 5; i++ {
		addTurn(h, "question", "answer")
	}
	h.MaybeSummarize(context.Background(), fp)
	for i := 0; i < 5; i++ {
		addTurn(h, "more", "answers")
	}
	h.MaybeSummarize(context.Background(), fp)

	if got := fp.requests[0].MaxTokens; got != 1000 {
		t.Errorf("summary MaxTokens = %d, want half the cap", got)
	}
	if got := fp.requests[2].MaxTokens; got != 1200 {
		t.Errorf("merge MaxTokens = %d, want 1200", got)
	}

	// Zero falls back to the default cap.
	d := NewHistory(4, 6, 0)
	if d.summaryBudget() != 500 || d.mergeBudget() != 600 {
		t.Errorf("default budgets = %d/%d, want 500/600", d.summaryBudget(), d.mergeBudget())
	}
}

func TestToolResultsDoNotCountAsTurns(t *testing.T) {
	h := NewHistory(4, 6, 0)
	h.AddUserMessage("check my status")
	h.AddAssistantMessage("", []providers.ToolCall{{ID: "t1", Name: "get_status"}})
	h.AddToolResult("t1", "{}", false)
	h.AddAssistantMessage("all clear", nil)

	if got := countTurns(h.BuildMessages()); got != 1 {
		t.Errorf("turns = %d, want 1 (tool results don't start turns)", got)
	}
}

func TestEmptyAssistantMessageDropped(t *testing.T) {
	h := NewHistory(4, 6, 0)
	h.AddUserMessage("hi")
	h.AddAssistantMessage("", nil)
	if h.Len() != 1 {
		t.Errorf("messages = %d, want 1 (empty assistant message dropped)", h.Len())
	}
}

func TestFormatForSummary(t *testing.T) {
	msgs := []providers.Message{
		{Role: "user", Content: "what needs attention?"},
		{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "t1", Name: "get_status"}}},
		{Role: "tool", ToolCallID: "t1", Content: strings.Repeat("x", 400)},
		{Role: "assistant", Content: "two mentions in #general"},
	}
	text := formatForSummary(msgs)

	if !strings.Contains(text, "USER: what needs attention?") {
		t.Error("missing user line")
	}
	if !strings.Contains(text, "[called tool: get_status]") {
		t.Error("missing tool call line")
	}
	if !strings.Contains(text, "[tool result: "+strings.Repeat("x", 300)+"...]") {
		t.Error("tool result not truncated to 300 chars")
	}
	if !strings.Contains(text, "ASSISTANT: two mentions in #general") {
		t.Error("missing assistant line")
	}
}

func TestBuildSystemPromptFallbacks(t *testing.T) {
	prompt := BuildSystemPrompt(PromptContext{})
	for _, want := range []string{"No specific user context.", "No custom rules defined.", "No remembered facts."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing fallback %q", want)
		}
	}

	prompt = BuildSystemPrompt(PromptContext{
		UserContext: "User ID: U111",
		CustomRules: "- always flag alice",
	})
	if !strings.Contains(prompt, "User ID: U111") || !strings.Contains(prompt, "- always flag alice") {
		t.Error("prompt missing provided context")
	}
	if strings.Contains(prompt, "No specific user context.") {
		t.Error("fallback shown despite provided context")
	}
}
