// Package agent runs the tool-calling conversation loop: it builds
// the system prompt from preferences and session state, iterates
// model calls until no more tools are requested, and keeps history
// bounded through summarization.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lunarhue/sidekick/internal/prefs"
	"github.com/lunarhue/sidekick/internal/providers"
	"github.com/lunarhue/sidekick/internal/session"
	"github.com/lunarhue/sidekick/internal/tools"
)

const defaultMaxIterations = 10

// LoopConfig wires a conversation loop.
type LoopConfig struct {
	Provider providers.Provider
	Registry *tools.Registry
	Prefs    *prefs.Storage
	State    *session.State
	Resumed  bool
	UserID   string

	MaxIterations      int
	MaxRecentTurns     int
	SummarizeThreshold int
	MaxSummaryTokens   int
}

// Loop is one interactive conversation with the model.
type Loop struct {
	provider providers.Provider
	registry *tools.Registry
	history  *History
	prefs    *prefs.Storage
	state    *session.State
	resumed  bool
	userID   string

	maxIterations int
	tracer        trace.Tracer
}

// RunResult is the outcome of processing one user message.
type RunResult struct {
	Content    string
	Iterations int
	Usage      providers.Usage
}

func NewLoop(cfg LoopConfig) *Loop {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	return &Loop{
		provider:      cfg.Provider,
		registry:      cfg.Registry,
		history:       NewHistory(cfg.MaxRecentTurns, cfg.SummarizeThreshold, cfg.MaxSummaryTokens),
		prefs:         cfg.Prefs,
		state:         cfg.State,
		resumed:       cfg.Resumed,
		userID:        cfg.UserID,
		maxIterations: maxIter,
		tracer:        otel.Tracer("sidekick/agent"),
	}
}

// History exposes the conversation history, mainly for the chat REPL's
// /new command.
func (l *Loop) History() *History { return l.history }

// StartSession runs the opening status check: a recap prompt for
// resumed sessions with a saved summary, a plain status check
// otherwise.
func (l *Loop) StartSession(ctx context.Context) (*RunResult, error) {
	prompt := InitialStatusPrompt
	if l.resumed && l.state != nil && l.state.ConversationSummary != nil {
		prompt = ResumeStatusPrompt
	}
	return l.Run(ctx, prompt)
}

// Run processes one user message through the tool-calling loop.
func (l *Loop) Run(ctx context.Context, userMessage string) (*RunResult, error) {
	ctx, span := l.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.Int("message.chars", len(userMessage))))
	defer span.End()

	l.history.AddUserMessage(userMessage)

	systemPrompt := l.buildSystemPrompt()
	toolDefs := l.registry.Definitions()

	result := &RunResult{}
	var lastContent string

	for result.Iterations < l.maxIterations {
		result.Iterations++
		slog.Debug("agent iteration", "iteration", result.Iterations, "history", l.history.Len())

		resp, err := l.chat(ctx, providers.ChatRequest{
			Messages: l.history.BuildMessages(),
			System:   systemPrompt,
			Tools:    toolDefs,
		}, result.Iterations)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("LLM call failed (iteration %d): %w", result.Iterations, err)
		}
		result.Usage.Add(resp.Usage)
		lastContent = resp.Content

		if len(resp.ToolCalls) == 0 {
			result.Content = resp.Content
			break
		}

		l.history.AddAssistantMessage(resp.Content, resp.ToolCalls)
		l.dispatchTools(ctx, resp.ToolCalls)
	}

	if result.Content == "" {
		slog.Warn("agent reached max iterations without a final answer", "iterations", result.Iterations)
		result.Content = lastContent
		if result.Content == "" {
			result.Content = "I ran out of tool-call budget before finishing. Ask me to continue."
		}
	}

	l.history.AddAssistantMessage(result.Content, nil)
	l.history.MaybeSummarize(ctx, l.provider)

	span.SetAttributes(
		attribute.Int("agent.iterations", result.Iterations),
		attribute.Int("tokens.prompt", result.Usage.PromptTokens),
		attribute.Int("tokens.completion", result.Usage.CompletionTokens),
	)
	return result, nil
}

func (l *Loop) chat(ctx context.Context, req providers.ChatRequest, iteration int) (*providers.ChatResponse, error) {
	ctx, span := l.tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.String("llm.provider", l.provider.Name()),
		attribute.String("llm.model", l.provider.DefaultModel()),
		attribute.Int("llm.iteration", iteration),
	))
	defer span.End()

	resp, err := l.provider.Chat(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.tokens.prompt", resp.Usage.PromptTokens),
			attribute.Int("llm.tokens.completion", resp.Usage.CompletionTokens),
		)
	}
	span.SetAttributes(attribute.String("llm.finish_reason", resp.FinishReason))
	return resp, nil
}

// dispatchTools executes the requested calls, in parallel when there
// is more than one, and appends results to history in call order.
func (l *Loop) dispatchTools(ctx context.Context, calls []providers.ToolCall) {
	if len(calls) == 1 {
		tc := calls[0]
		res := l.executeTool(ctx, tc)
		l.history.AddToolResult(tc.ID, res.ForLLM, res.IsError)
		return
	}

	type indexedResult struct {
		idx    int
		tc     providers.ToolCall
		result *tools.Result
	}

	resultCh := make(chan indexedResult, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, tc providers.ToolCall) {
			defer wg.Done()
			resultCh <- indexedResult{idx: idx, tc: tc, result: l.executeTool(ctx, tc)}
		}(i, tc)
	}
	go func() { wg.Wait(); close(resultCh) }()

	collected := make([]indexedResult, 0, len(calls))
	for r := range resultCh {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

	for _, r := range collected {
		l.history.AddToolResult(r.tc.ID, r.result.ForLLM, r.result.IsError)
	}
}

func (l *Loop) executeTool(ctx context.Context, tc providers.ToolCall) *tools.Result {
	ctx, span := l.tracer.Start(ctx, "tool.exec",
		trace.WithAttributes(attribute.String("tool.name", tc.Name)))
	defer span.End()

	argsJSON, _ := json.Marshal(tc.Arguments)
	slog.Info("tool call", "tool", tc.Name, "args_len", len(argsJSON))

	res := l.registry.Execute(ctx, tc.Name, tc.Arguments)
	if res.IsError {
		span.SetStatus(codes.Error, clip(res.ForLLM, 200))
		slog.Warn("tool error", "tool", tc.Name, "error", clip(res.ForLLM, 200))
	}
	span.SetAttributes(attribute.Bool("tool.is_error", res.IsError))
	return res
}

func (l *Loop) buildSystemPrompt() string {
	pc := PromptContext{}
	if l.userID != "" {
		pc.UserContext = "User ID: " + l.userID
	}
	if l.state != nil {
		if l.resumed {
			pc.SessionContext = "Resuming previous session:\n" + l.state.SummaryText()
		} else {
			pc.SessionContext = "New session started: " + l.state.SessionID
		}
	}
	if l.prefs != nil {
		p := l.prefs.Load()
		pc.CustomRules = p.RulesText()
		pc.RememberedFacts = p.FactsText()
		pc.EmojiPatterns = p.EmojiPatternsText()
	}
	return BuildSystemPrompt(pc)
}
