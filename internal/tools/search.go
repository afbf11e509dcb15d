package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/store"
)

// Relevance assigned to matches that carry no cosine score of their
// own, keeping substring and upstream hits below a strong vector hit
// but above a weak one.
const (
	textMatchScore = 0.5
	apiMatchScore  = 0.3
)

// SearchTool searches synced messages: substring match always, vector
// similarity when an embedding host is configured, and optionally the
// Slack search API for history that predates syncing. Hits from every
// source merge into one relevance-ranked list.
type SearchTool struct {
	deps *Deps
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "Search Slack messages by text and semantic similarity. Searches the local database by default; set use_slack_api to also search workspace-wide, including channels not yet synced. Results carry relevance scores."
}

func (t *SearchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Text to search for",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum results (1-50)",
				"minimum":     1,
				"maximum":     50,
				"default":     10,
			},
			"use_slack_api": map[string]any{
				"type":        "boolean",
				"description": "Also search via the Slack API (slower but may find more)",
				"default":     false,
			},
		},
		"required": []string{"query"},
	}
}

// searchHit is one merged result. Local hits render through the store
// message; upstream-only hits carry their own pre-resolved names.
type searchHit struct {
	msg       store.Message
	score     float64
	matchType string

	api         bool
	channelName string
	userName    string
	link        string
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := stringArg(args, "query")
	if query == "" {
		return ErrorResult("query is required")
	}
	limit := intArg(args, "limit", 10, 1, 50)

	hits := map[string]*searchHit{}

	// Vector pass. A failing embedding host degrades to text-only
	// rather than failing the whole search.
	if t.deps.Embedder != nil {
		if vectors, err := t.deps.Embedder.Embed(ctx, []string{query}); err == nil && len(vectors) == 1 {
			sims, err := t.deps.Store.SearchSimilar(ctx, vectors[0], limit)
			if err != nil {
				return ErrorResult(fmt.Sprintf("similarity search failed: %v", err)).WithError(err)
			}
			for _, s := range sims {
				mergeHit(hits, &searchHit{msg: s.Message, score: s.Score, matchType: "vector"})
			}
		}
	}

	// Substring pass, always.
	msgs, err := t.deps.Store.SearchMessageText(ctx, query, limit)
	if err != nil {
		return ErrorResult(fmt.Sprintf("search failed: %v", err)).WithError(err)
	}
	for _, m := range msgs {
		mergeHit(hits, &searchHit{msg: m, score: textMatchScore, matchType: "text"})
	}

	// Upstream pass, additive on request.
	if boolArg(args, "use_slack_api", false) {
		matches, err := t.deps.Slack.SearchMessages(ctx, query, limit)
		if err != nil {
			return ErrorResult(fmt.Sprintf("slack search failed: %v", err)).WithError(err)
		}
		for _, m := range matches {
			mergeHit(hits, &searchHit{
				msg:         store.Message{ChannelID: m.Channel.ID, Ts: m.Ts, UserID: m.User, Text: m.Text},
				score:       apiMatchScore,
				matchType:   "slack_api",
				api:         true,
				channelName: m.Channel.Name,
				userName:    m.Username,
				link:        m.Permalink,
			})
		}
	}

	ranked := make([]*searchHit, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, h)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return store.CompareTs(ranked[i].msg.Ts, ranked[j].msg.Ts) > 0
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	entities := format.NewEntities()
	for _, h := range ranked {
		if h.api {
			continue
		}
		entities.AddUser(h.msg.UserID)
		entities.AddChannel(h.msg.ChannelID)
		entities.Merge(format.Collect(h.msg.Text))
	}
	fctx, err := t.deps.Resolver.Resolve(ctx, entities)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to resolve names: %v", err)).WithError(err)
	}

	results := make([]map[string]any, 0, len(ranked))
	for _, h := range ranked {
		entry := map[string]any{
			"timestamp":  store.TsTime(h.msg.Ts).Format(time.RFC3339),
			"score":      math.Round(h.score*1000) / 1000,
			"match_type": h.matchType,
		}
		if h.msg.ThreadTs != "" {
			entry["thread_ts"] = h.msg.ThreadTs
		}
		if h.api {
			entry["channel"] = "#" + h.channelName
			entry["user"] = h.userName
			entry["text"] = h.msg.Text
			entry["link"] = h.link
		} else {
			entry["channel"] = fctx.ChannelName(h.msg.ChannelID)
			entry["user"] = fctx.UserName(h.msg.UserID)
			entry["text"] = format.FormatText(h.msg.Text, fctx.Users, fctx.Channels)
			entry["link"] = buildLink(t.deps.LinkHost, h.msg.ChannelID, h.msg.Ts, h.msg.ThreadTs)
		}
		results = append(results, entry)
	}

	return JSONResult(map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// mergeHit dedupes by the (channel, ts) natural key, keeping the best
// score. A locally synced copy always wins over an upstream one.
func mergeHit(hits map[string]*searchHit, h *searchHit) {
	key := h.msg.ChannelID + ":" + h.msg.Ts
	existing, ok := hits[key]
	switch {
	case !ok:
		hits[key] = h
	case existing.api && !h.api:
		hits[key] = h
	case !h.api && h.score > existing.score:
		existing.score = h.score
		existing.matchType = h.matchType
	}
}
