package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/store"
)

// StatusTool returns the pre-computed priority digest.
type StatusTool struct {
	deps *Deps
}

func (t *StatusTool) Name() string { return "get_status" }

func (t *StatusTool) Description() string {
	return "Get a prioritized digest of Slack activity needing attention: mentions, DMs, thread replies, and pending reminders, grouped by priority."
}

func (t *StatusTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hours_back": map[string]any{
				"type":        "integer",
				"description": "How many hours of history to consider (1-168)",
				"minimum":     1,
				"maximum":     168,
				"default":     24,
			},
			"include_processed": map[string]any{
				"type":        "boolean",
				"description": "Include items already marked handled this session",
				"default":     false,
			},
		},
		"required": []string{},
	}
}

func (t *StatusTool) Execute(ctx context.Context, args map[string]any) *Result {
	opts := ComposeOptions{
		HoursBack:        intArg(args, "hours_back", 24, 1, 168),
		IncludeProcessed: boolArg(args, "include_processed", false),
	}

	var filter ProcessedFilter
	if t.deps.State != nil {
		filter = t.deps.State
	}
	report, err := t.deps.Status.Compose(ctx, opts, filter)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to compose status: %v", err)).WithError(err)
	}

	counts := map[string]int{}
	items := make([]map[string]any, 0, len(report.Items))
	for _, it := range report.Items {
		counts[it.Priority]++
		items = append(items, map[string]any{
			"priority":     it.Priority,
			"channel":      it.ChannelName,
			"user":         it.UserName,
			"text_preview": format.Truncate(it.Text, 100),
			"timestamp":    store.TsTime(it.Ts).Format(time.RFC3339),
			"link":         it.Link,
			"reason":       it.Reason,
			"thread_ts":    it.ThreadTs,
		})
	}

	reminders := make([]map[string]any, 0, len(report.Reminders))
	for _, r := range report.Reminders {
		entry := map[string]any{
			"id":        r.ID,
			"text":      r.Text,
			"recurring": r.Recurring,
		}
		if r.Time != nil {
			entry["time"] = r.Time.Format(time.RFC3339)
		}
		reminders = append(reminders, entry)
	}

	return JSONResult(map[string]any{
		"generated_at": report.GeneratedAt.Format(time.RFC3339),
		"summary": map[string]any{
			"total_items":     len(report.Items),
			"critical_count":  counts[PriorityCritical],
			"high_count":      counts[PriorityHigh],
			"medium_count":    counts[PriorityMedium],
			"low_count":       counts[PriorityLow],
			"reminders_count": len(reminders),
		},
		"items":     items,
		"reminders": reminders,
	})
}
