package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/store"
)

// AnalyzeTool returns recent messages with metadata hints for the
// model to categorize itself, as opposed to get_status's pre-computed
// digest.
type AnalyzeTool struct {
	deps *Deps
}

func (t *AnalyzeTool) Name() string { return "analyze_messages" }

func (t *AnalyzeTool) Description() string {
	return "Fetch recent Slack messages with metadata (mentions, DMs, priority hints) for you to analyze and prioritize yourself. Use this for a deeper pass than get_status."
}

func (t *AnalyzeTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hours_back": map[string]any{
				"type":        "integer",
				"description": "How many hours of history to fetch (1-168)",
				"minimum":     1,
				"maximum":     168,
				"default":     24,
			},
			"max_messages": map[string]any{
				"type":        "integer",
				"description": "Maximum number of messages to return (1-100)",
				"minimum":     1,
				"maximum":     100,
				"default":     50,
			},
			"include_own_messages": map[string]any{
				"type":        "boolean",
				"description": "Include messages you authored yourself",
				"default":     false,
			},
			"text_limit": map[string]any{
				"type":        "integer",
				"description": "Truncate message text to this many characters (100-2000)",
				"minimum":     100,
				"maximum":     2000,
				"default":     500,
			},
			"exclude_analyzed": map[string]any{
				"type":        "boolean",
				"description": "Skip messages already analyzed this session",
				"default":     true,
			},
		},
		"required": []string{},
	}
}

func (t *AnalyzeTool) Execute(ctx context.Context, args map[string]any) *Result {
	hoursBack := intArg(args, "hours_back", 24, 1, 168)
	maxMessages := intArg(args, "max_messages", 50, 1, 100)
	includeOwn := boolArg(args, "include_own_messages", false)
	textLimit := intArg(args, "text_limit", 500, 100, 2000)
	excludeAnalyzed := boolArg(args, "exclude_analyzed", true)

	msgs, err := t.deps.Store.GetRecentMessagesForAnalysis(ctx, store.AnalysisQuery{
		UserID:     t.deps.UserID,
		Since:      time.Now().Add(-time.Duration(hoursBack) * time.Hour),
		Limit:      maxMessages,
		IncludeOwn: includeOwn,
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to fetch messages: %v", err)).WithError(err)
	}
	totalFound := len(msgs)

	excluded := 0
	if excludeAnalyzed && t.deps.State != nil {
		analyzed := t.deps.State.AnalyzedKeys()
		kept := msgs[:0]
		for _, m := range msgs {
			if _, done := analyzed[m.Key()]; done {
				excluded++
				continue
			}
			kept = append(kept, m)
		}
		msgs = kept
	}

	entities := format.NewEntities()
	for _, m := range msgs {
		entities.AddUser(m.UserID)
		entities.AddChannel(m.ChannelID)
		entities.Merge(format.Collect(m.Text))
	}
	fctx, err := t.deps.Resolver.Resolve(ctx, entities)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to resolve names: %v", err)).WithError(err)
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		text := format.FormatText(m.Text, fctx.Users, fctx.Channels)
		out = append(out, map[string]any{
			"id":                m.Key(),
			"channel":           fctx.ChannelName(m.ChannelID),
			"channel_type":      m.ChannelType,
			"user":              fctx.UserName(m.UserID),
			"is_own_message":    m.UserID == t.deps.UserID,
			"is_mention":        m.IsMention,
			"is_dm":             m.IsDM,
			"is_self_dm":        m.IsSelfDM,
			"text":              format.Truncate(text, textLimit),
			"timestamp":         store.TsTime(m.Ts).Format(time.RFC3339),
			"link":              buildLink(t.deps.LinkHost, m.ChannelID, m.Ts, m.ThreadTs),
			"metadata_priority": m.PriorityHint,
		})
	}

	payload := map[string]any{
		"user_id":              t.deps.UserID,
		"hours_back":           hoursBack,
		"total_found":          totalFound,
		"returned":             len(out),
		"include_own_messages": includeOwn,
		"messages":             out,
	}
	if excluded > 0 {
		payload["excluded_already_analyzed"] = excluded
	}
	return JSONResult(payload)
}
