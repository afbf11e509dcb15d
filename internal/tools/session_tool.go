package tools

import (
	"context"
	"fmt"

	"github.com/lunarhue/sidekick/internal/session"
)

// SessionTool manages the working session: marking items handled,
// recording focus, and saving conversation summaries across restarts.
type SessionTool struct {
	deps *Deps
}

func (t *SessionTool) Name() string { return "manage_session" }

func (t *SessionTool) Description() string {
	return "Manage the current working session: mark items as reviewed/deferred/acted on so they stop resurfacing, set the current focus, and save a conversation summary for the next session."
}

func (t *SessionTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"get_session_info",
					"mark_item_reviewed", "mark_item_deferred", "mark_item_acted_on",
					"set_focus",
					"save_summary",
					"get_processed_items",
				},
				"description": "The session operation to perform",
			},
			"channel_id": map[string]any{
				"type":        "string",
				"description": "Channel of the item being marked",
			},
			"message_ts": map[string]any{
				"type":        "string",
				"description": "Timestamp of the item being marked",
			},
			"thread_ts": map[string]any{
				"type":        "string",
				"description": "Thread the item belongs to, if any",
			},
			"notes": map[string]any{
				"type":        "string",
				"description": "Optional note about how the item was handled",
			},
			"focus": map[string]any{
				"type":        "string",
				"description": "What the user is currently focused on (for set_focus)",
			},
			"summary_text": map[string]any{
				"type":        "string",
				"description": "Conversation summary (for save_summary)",
			},
			"key_topics": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Main topics discussed (for save_summary)",
			},
			"pending_follow_ups": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Follow-ups to surface next session (for save_summary)",
			},
		},
		"required": []string{"action"},
	}
}

func (t *SessionTool) Execute(ctx context.Context, args map[string]any) *Result {
	action := stringArg(args, "action")

	t.deps.mu.Lock()
	defer t.deps.mu.Unlock()

	st := t.deps.State
	if st == nil {
		return ErrorResult("no active session")
	}

	switch action {
	case "get_session_info":
		return JSONResult(map[string]any{
			"session_id":      st.SessionID,
			"started_at":      st.StartedAt,
			"processed_count": len(st.ProcessedItems),
			"analyzed_count":  len(st.AnalyzedItems),
			"current_focus":   st.CurrentFocus,
			"has_summary":     st.ConversationSummary != nil,
		})

	case "mark_item_reviewed":
		return t.markItem(st, args, session.Reviewed)
	case "mark_item_deferred":
		return t.markItem(st, args, session.Deferred)
	case "mark_item_acted_on":
		return t.markItem(st, args, session.ActedOn)

	case "set_focus":
		focus := stringArg(args, "focus")
		if focus == "" {
			return ErrorResult("focus is required for set_focus")
		}
		st.CurrentFocus = focus
		if err := t.deps.saveSession(); err != nil {
			return ErrorResult(fmt.Sprintf("failed to save session: %v", err)).WithError(err)
		}
		return JSONResult(map[string]any{"success": true, "focus": focus})

	case "save_summary":
		text := stringArg(args, "summary_text")
		if text == "" {
			return ErrorResult("summary_text is required for save_summary")
		}
		st.ConversationSummary = &session.ConversationSummary{
			SummaryText:      text,
			KeyTopics:        stringSliceArg(args, "key_topics"),
			PendingFollowUps: stringSliceArg(args, "pending_follow_ups"),
		}
		if err := t.deps.saveSession(); err != nil {
			return ErrorResult(fmt.Sprintf("failed to save session: %v", err)).WithError(err)
		}
		return JSONResult(map[string]any{"success": true})

	case "get_processed_items":
		return JSONResult(map[string]any{
			"count": len(st.ProcessedItems),
			"items": st.ProcessedItems,
		})

	default:
		return ErrorResult(fmt.Sprintf("unknown action: %s", action))
	}
}

func (t *SessionTool) markItem(st *session.State, args map[string]any, disposition session.Disposition) *Result {
	channelID := stringArg(args, "channel_id")
	messageTs := stringArg(args, "message_ts")
	if channelID == "" || messageTs == "" {
		return ErrorResult("channel_id and message_ts are required")
	}
	item := st.AddProcessedItem(channelID, messageTs, disposition,
		stringArg(args, "thread_ts"), stringArg(args, "notes"))
	if err := t.deps.saveSession(); err != nil {
		return ErrorResult(fmt.Sprintf("failed to save session: %v", err)).WithError(err)
	}
	return JSONResult(map[string]any{"success": true, "item": item})
}
