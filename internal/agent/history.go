package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lunarhue/sidekick/internal/providers"
)

const (
	defaultMaxRecentTurns     = 4
	defaultSummarizeThreshold = 6
	defaultMaxSummaryTokens   = 1000

	summarizerSystemPrompt = "You are a concise summarization assistant. " +
		"Your summaries are factual, brief, and preserve key details."
)

// History manages conversation messages with automatic summarization:
// a rolling window of recent turns stays in full detail while older
// turns condense into a running summary injected ahead of the window.
type History struct {
	mu       sync.Mutex
	messages []providers.Message
	summary  string

	maxRecentTurns     int
	summarizeThreshold int
	maxSummaryTokens   int
}

func NewHistory(maxRecentTurns, summarizeThreshold, maxSummaryTokens int) *History {
	if maxRecentTurns <= 0 {
		maxRecentTurns = defaultMaxRecentTurns
	}
	if summarizeThreshold <= 0 {
		summarizeThreshold = defaultSummarizeThreshold
	}
	if maxSummaryTokens <= 0 {
		maxSummaryTokens = defaultMaxSummaryTokens
	}
	return &History{
		maxRecentTurns:     maxRecentTurns,
		summarizeThreshold: summarizeThreshold,
		maxSummaryTokens:   maxSummaryTokens,
	}
}

// summaryBudget is the completion cap for a fresh segment summary; the
// merge gets slightly more headroom since it reads two summaries.
func (h *History) summaryBudget() int { return h.maxSummaryTokens / 2 }
func (h *History) mergeBudget() int   { return h.maxSummaryTokens * 3 / 5 }

func (h *History) AddUserMessage(content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, providers.Message{Role: "user", Content: content})
}

// AddAssistantMessage records the assistant's turn. A message with no
// content and no tool calls is dropped: the API rejects empty
// non-final assistant messages.
func (h *History) AddAssistantMessage(content string, toolCalls []providers.ToolCall) {
	if content == "" && len(toolCalls) == 0 {
		slog.Debug("skipping assistant message with no content")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, providers.Message{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	})
}

func (h *History) AddToolResult(toolCallID, content string, isError bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, providers.Message{
		Role:        "tool",
		Content:     content,
		ToolCallID:  toolCallID,
		ToolIsError: isError,
	})
}

// BuildMessages returns the message list for the next LLM call, with
// the summary injected as the leading user message when present.
func (h *History) BuildMessages() []providers.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.summary == "" {
		out := make([]providers.Message, len(h.messages))
		copy(out, h.messages)
		return out
	}

	out := make([]providers.Message, 0, len(h.messages)+1)
	out = append(out, providers.Message{
		Role:    "user",
		Content: "[Context Summary from earlier in conversation]\n" + h.summary + "\n[End of summary]",
	})
	out = append(out, h.messages...)
	return out
}

// Clear drops all messages and the summary.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.summary = ""
}

// Summary returns the current condensed summary, empty until the
// conversation has been summarized at least once.
func (h *History) Summary() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

// Len returns the raw message count.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// countTurns counts user-initiated exchanges. Tool results belong to
// the turn of the user message that triggered them, so only role=user
// messages count.
func countTurns(messages []providers.Message) int {
	count := 0
	for _, m := range messages {
		if m.Role == "user" {
			count++
		}
	}
	return count
}

// turnIndices returns the indices of user messages that start turns.
func turnIndices(messages []providers.Message) []int {
	var idx []int
	for i, m := range messages {
		if m.Role == "user" {
			idx = append(idx, i)
		}
	}
	return idx
}

// recentWindowStart returns the index where the last maxRecentTurns
// turns begin, or 0 when the whole history fits in the window.
func (h *History) recentWindowStart() int {
	turns := turnIndices(h.messages)
	if len(turns) <= h.maxRecentTurns {
		return 0
	}
	return turns[len(turns)-h.maxRecentTurns]
}

// MaybeSummarize condenses old turns when the conversation exceeds
// the threshold. On summarization failure it truncates to the last 20
// messages so context can't grow without bound.
func (h *History) MaybeSummarize(ctx context.Context, provider providers.Provider) {
	h.mu.Lock()
	turnCount := countTurns(h.messages)
	if turnCount <= h.summarizeThreshold {
		h.mu.Unlock()
		return
	}

	start := h.recentWindowStart()
	if start == 0 {
		h.mu.Unlock()
		return
	}
	old := make([]providers.Message, start)
	copy(old, h.messages[:start])
	existingSummary := h.summary
	h.mu.Unlock()

	slog.Info("summarizing conversation", "turns", turnCount, "threshold", h.summarizeThreshold, "old_messages", len(old))

	newSummary, err := h.generateSummary(ctx, provider, old)
	if err == nil && existingSummary != "" {
		newSummary, err = h.mergeSummaries(ctx, provider, existingSummary, newSummary)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		slog.Warn("summarization failed, truncating history", "error", err)
		if len(h.messages) > 20 {
			h.messages = h.messages[len(h.messages)-20:]
		}
		return
	}

	h.summary = newSummary
	// Recompute the window: messages may have been appended meanwhile.
	start = h.recentWindowStart()
	h.messages = h.messages[start:]
	slog.Info("summarization complete", "summary_chars", len(h.summary), "kept_messages", len(h.messages))
}

func (h *History) generateSummary(ctx context.Context, provider providers.Provider, old []providers.Message) (string, error) {
	prompt := fmt.Sprintf(`Summarize this conversation segment concisely (max 200 words):

Focus on:
- Key facts discovered (channels, users, priorities, message IDs)
- Actions taken or decisions made
- Items marked as reviewed, deferred, or acted upon
- Important context for continuing the conversation

Be extremely concise. Omit greetings and redundant information.
Preserve specific identifiers (channel names, user names, timestamps) when mentioned.

Conversation to summarize:
%s
`, formatForSummary(old))

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Messages:  []providers.Message{{Role: "user", Content: prompt}},
		System:    summarizerSystemPrompt,
		MaxTokens: h.summaryBudget(),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (h *History) mergeSummaries(ctx context.Context, provider providers.Provider, oldSummary, newSummary string) (string, error) {
	prompt := fmt.Sprintf(`Merge these two summaries into ONE concise summary (max 250 words):

Summary 1 (older):
%s

Summary 2 (recent):
%s

Create a single merged summary. Prioritize recent information over older information.
Preserve key facts, channel names, user names, and important decisions.
`, oldSummary, newSummary)

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Messages:  []providers.Message{{Role: "user", Content: prompt}},
		System:    summarizerSystemPrompt,
		MaxTokens: h.mergeBudget(),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// formatForSummary renders messages as readable lines for the
// summarizer, truncating long bodies.
func formatForSummary(messages []providers.Message) string {
	var lines []string
	for _, m := range messages {
		switch m.Role {
		case "tool":
			lines = append(lines, fmt.Sprintf("USER: [tool result: %s...]", clip(m.Content, 300)))
		case "assistant":
			if m.Content != "" {
				lines = append(lines, "ASSISTANT: "+clip(m.Content, 500))
			}
			for _, tc := range m.ToolCalls {
				lines = append(lines, fmt.Sprintf("ASSISTANT: [called tool: %s]", tc.Name))
			}
		default:
			lines = append(lines, strings.ToUpper(m.Role)+": "+clip(m.Content, 500))
		}
	}
	return strings.Join(lines, "\n")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
