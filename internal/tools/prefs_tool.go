package tools

import (
	"context"
	"fmt"
)

// PreferencesTool manages the persistent user preferences: custom
// prioritization rules, remembered facts, and emoji reaction patterns.
type PreferencesTool struct {
	deps *Deps
}

func (t *PreferencesTool) Name() string { return "manage_preferences" }

func (t *PreferencesTool) Description() string {
	return "Manage persistent user preferences: custom prioritization rules, remembered facts about the user, and emoji reaction patterns (which emojis mean a message is handled)."
}

func (t *PreferencesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"get_all",
					"add_rule", "remove_rule",
					"add_fact", "remove_fact",
					"add_emoji_pattern", "remove_emoji_pattern", "get_emoji_patterns",
				},
				"description": "The preference operation to perform",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Rule or fact text (for add_rule / add_fact)",
			},
			"id": map[string]any{
				"type":        "string",
				"description": "Rule or fact ID (for remove_rule / remove_fact)",
			},
			"emoji": map[string]any{
				"type":        "string",
				"description": "Emoji name, with or without colons (for emoji pattern actions)",
			},
			"meaning": map[string]any{
				"type":        "string",
				"description": "What the emoji signifies (for add_emoji_pattern)",
			},
			"marks_as_handled": map[string]any{
				"type":        "boolean",
				"description": "Whether reacting with this emoji marks an item handled",
				"default":     false,
			},
			"priority_adjustment": map[string]any{
				"type":        "integer",
				"description": "Priority shift for items with this reaction (-2 to 2)",
				"minimum":     -2,
				"maximum":     2,
				"default":     0,
			},
		},
		"required": []string{"action"},
	}
}

func (t *PreferencesTool) Execute(ctx context.Context, args map[string]any) *Result {
	action := stringArg(args, "action")

	t.deps.mu.Lock()
	defer t.deps.mu.Unlock()

	p := t.deps.Prefs.Load()

	switch action {
	case "get_all":
		return JSONResult(map[string]any{
			"rules":          p.Rules,
			"facts":          p.Facts,
			"emoji_patterns": p.EmojiPatterns,
		})

	case "add_rule":
		content := stringArg(args, "content")
		if content == "" {
			return ErrorResult("content is required for add_rule")
		}
		rule := p.AddRule(content)
		if err := t.deps.Prefs.Save(p); err != nil {
			return ErrorResult(fmt.Sprintf("failed to save preferences: %v", err)).WithError(err)
		}
		return JSONResult(map[string]any{"success": true, "rule": rule})

	case "remove_rule":
		id := stringArg(args, "id")
		if !p.RemoveRule(id) {
			return ErrorResult(fmt.Sprintf("no rule with id %q", id))
		}
		if err := t.deps.Prefs.Save(p); err != nil {
			return ErrorResult(fmt.Sprintf("failed to save preferences: %v", err)).WithError(err)
		}
		return JSONResult(map[string]any{"success": true, "removed": id})

	case "add_fact":
		content := stringArg(args, "content")
		if content == "" {
			return ErrorResult("content is required for add_fact")
		}
		fact := p.AddFact(content)
		if err := t.deps.Prefs.Save(p); err != nil {
			return ErrorResult(fmt.Sprintf("failed to save preferences: %v", err)).WithError(err)
		}
		return JSONResult(map[string]any{"success": true, "fact": fact})

	case "remove_fact":
		id := stringArg(args, "id")
		if !p.RemoveFact(id) {
			return ErrorResult(fmt.Sprintf("no fact with id %q", id))
		}
		if err := t.deps.Prefs.Save(p); err != nil {
			return ErrorResult(fmt.Sprintf("failed to save preferences: %v", err)).WithError(err)
		}
		return JSONResult(map[string]any{"success": true, "removed": id})

	case "add_emoji_pattern":
		emoji := stringArg(args, "emoji")
		meaning := stringArg(args, "meaning")
		if emoji == "" || meaning == "" {
			return ErrorResult("emoji and meaning are required for add_emoji_pattern")
		}
		pattern, updated := p.SetEmojiPattern(emoji, meaning,
			boolArg(args, "marks_as_handled", false),
			intArg(args, "priority_adjustment", 0, -2, 2))
		if err := t.deps.Prefs.Save(p); err != nil {
			return ErrorResult(fmt.Sprintf("failed to save preferences: %v", err)).WithError(err)
		}
		return JSONResult(map[string]any{"success": true, "pattern": pattern, "updated": updated})

	case "remove_emoji_pattern":
		emoji := stringArg(args, "emoji")
		if !p.RemoveEmojiPattern(emoji) {
			return ErrorResult(fmt.Sprintf("no emoji pattern for %q", emoji))
		}
		if err := t.deps.Prefs.Save(p); err != nil {
			return ErrorResult(fmt.Sprintf("failed to save preferences: %v", err)).WithError(err)
		}
		return JSONResult(map[string]any{"success": true, "removed": emoji})

	case "get_emoji_patterns":
		return JSONResult(map[string]any{"emoji_patterns": p.EmojiPatterns})

	default:
		return ErrorResult(fmt.Sprintf("unknown action: %s", action))
	}
}
