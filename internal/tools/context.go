package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/slackapi"
	"github.com/lunarhue/sidekick/internal/store"
)

// ContextTool finds the conversation around a message link: its thread
// and semantically related messages from the rest of the workspace.
type ContextTool struct {
	deps *Deps
}

func (t *ContextTool) Name() string { return "find_context" }

func (t *ContextTool) Description() string {
	return "Given a Slack message link, find its surrounding context: the thread it belongs to and related messages elsewhere (by semantic similarity when embeddings are available)."
}

func (t *ContextTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message_link": map[string]any{
				"type":        "string",
				"description": "Slack message permalink",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum related messages (1-25)",
				"minimum":     1,
				"maximum":     25,
				"default":     10,
			},
		},
		"required": []string{"message_link"},
	}
}

func (t *ContextTool) Execute(ctx context.Context, args map[string]any) *Result {
	link := stringArg(args, "message_link")
	if link == "" {
		return ErrorResult("message_link is required")
	}
	limit := intArg(args, "limit", 10, 1, 25)

	channelID, ts, ok := slackapi.ParseMessageLink(link)
	if !ok {
		return ErrorResult(fmt.Sprintf("could not parse message link: %s", link))
	}

	target, err := t.deps.Store.GetMessage(ctx, channelID, ts)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to load message: %v", err)).WithError(err)
	}
	if target == nil {
		return ErrorResult(fmt.Sprintf("message %s in %s is not in the database yet; try get_thread with refresh", ts, channelID))
	}

	thread, err := t.deps.Store.GetThreadMessages(ctx, channelID, target.EffectiveThreadTs())
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to load thread: %v", err)).WithError(err)
	}

	related, relatedSource, err := t.findRelated(ctx, target, limit)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to find related messages: %v", err)).WithError(err)
	}

	entities := format.NewEntities()
	entities.AddChannel(channelID)
	entities.AddUser(target.UserID)
	entities.Merge(format.Collect(target.Text))
	for _, m := range thread {
		entities.AddUser(m.UserID)
		entities.Merge(format.Collect(m.Text))
	}
	for _, r := range related {
		entities.AddUser(r.UserID)
		entities.AddChannel(r.ChannelID)
		entities.Merge(format.Collect(r.Text))
	}
	fctx, err := t.deps.Resolver.Resolve(ctx, entities)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to resolve names: %v", err)).WithError(err)
	}

	render := func(m store.Message, extra map[string]any) map[string]any {
		entry := map[string]any{
			"channel":   fctx.ChannelName(m.ChannelID),
			"user":      fctx.UserName(m.UserID),
			"text":      format.FormatText(m.Text, fctx.Users, fctx.Channels),
			"timestamp": store.TsTime(m.Ts).Format(time.RFC3339),
			"link":      buildLink(t.deps.LinkHost, m.ChannelID, m.Ts, m.ThreadTs),
		}
		for k, v := range extra {
			entry[k] = v
		}
		return entry
	}

	threadOut := make([]map[string]any, 0, len(thread))
	for _, m := range thread {
		if m.Ts == target.Ts {
			continue
		}
		threadOut = append(threadOut, render(m, nil))
	}

	relatedOut := make([]map[string]any, 0, len(related))
	for _, r := range related {
		var extra map[string]any
		if r.Score > 0 {
			extra = map[string]any{"similarity": r.Score}
		}
		relatedOut = append(relatedOut, render(r.Message, extra))
	}

	return JSONResult(map[string]any{
		"message":        render(*target, nil),
		"thread_context": threadOut,
		"related":        relatedOut,
		"related_source": relatedSource,
	})
}

// findRelated prefers vector similarity, falling back to text search
// on the message's leading words when no embedding host is configured.
func (t *ContextTool) findRelated(ctx context.Context, target *store.Message, limit int) ([]store.SimilarMessage, string, error) {
	if t.deps.Embedder != nil && strings.TrimSpace(target.Text) != "" {
		vectors, err := t.deps.Embedder.Embed(ctx, []string{target.Text})
		if err == nil && len(vectors) == 1 {
			hits, err := t.deps.Store.SearchSimilar(ctx, vectors[0], limit+1)
			if err != nil {
				return nil, "", err
			}
			out := hits[:0]
			for _, h := range hits {
				if h.ChannelID == target.ChannelID && h.Ts == target.Ts {
					continue
				}
				out = append(out, h)
			}
			if len(out) > limit {
				out = out[:limit]
			}
			return out, "embedding", nil
		}
		// Embedding host down: degrade to text search.
	}

	words := strings.Fields(target.Text)
	if len(words) > 8 {
		words = words[:8]
	}
	query := strings.Join(words, " ")
	if query == "" {
		return nil, "none", nil
	}
	msgs, err := t.deps.Store.SearchMessageText(ctx, query, limit+1)
	if err != nil {
		return nil, "", err
	}
	out := make([]store.SimilarMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ChannelID == target.ChannelID && m.Ts == target.Ts {
			continue
		}
		out = append(out, store.SimilarMessage{Message: m})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	source := "text_search"
	if len(out) == 0 {
		source = "none"
	}
	return out, source, nil
}
