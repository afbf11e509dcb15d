// Package format renders raw upstream message bodies into readable text.
// Bodies arrive with entity sigils (<@U…>, <#C…|name>, <http…|label>,
// <!here>, <!subteam^S…>) and HTML entities; the collector walks a body
// once gathering IDs that need lookup, and FormatText substitutes
// resolved names.
package format

import "regexp"

var (
	userMentionRe    = regexp.MustCompile(`<@([UW][A-Z0-9]+)(?:\|[^>]*)?>`)
	channelLinkRe    = regexp.MustCompile(`<#(C[A-Z0-9]+)(?:\|([^>]*))?>`)
	urlLinkRe        = regexp.MustCompile(`<(https?://[^|>]+)(?:\|([^>]+))?>`)
	specialMentionRe = regexp.MustCompile(`<!(here|channel|everyone)(?:\|[^>]*)?>`)
	teamMentionRe    = regexp.MustCompile(`<!subteam\^([A-Z0-9]+)(?:\|([^>]+))?>`)
	htmlEntityRe     = regexp.MustCompile(`&(amp|lt|gt|nbsp|quot);`)
)

var htmlEntities = map[string]string{
	"amp":  "&",
	"lt":   "<",
	"gt":   ">",
	"nbsp": " ",
	"quot": `"`,
}

// Entities holds the user and channel IDs found in one or more bodies
// that still need name resolution.
type Entities struct {
	UserIDs    map[string]struct{}
	ChannelIDs map[string]struct{}
}

func NewEntities() *Entities {
	return &Entities{
		UserIDs:    make(map[string]struct{}),
		ChannelIDs: make(map[string]struct{}),
	}
}

// AddUser records a user ID for resolution.
func (e *Entities) AddUser(id string) {
	if id != "" {
		e.UserIDs[id] = struct{}{}
	}
}

// AddChannel records a channel ID for resolution.
func (e *Entities) AddChannel(id string) {
	if id != "" {
		e.ChannelIDs[id] = struct{}{}
	}
}

// Merge folds other into e.
func (e *Entities) Merge(other *Entities) {
	for id := range other.UserIDs {
		e.UserIDs[id] = struct{}{}
	}
	for id := range other.ChannelIDs {
		e.ChannelIDs[id] = struct{}{}
	}
}

// Empty reports whether nothing needs resolution.
func (e *Entities) Empty() bool {
	return len(e.UserIDs) == 0 && len(e.ChannelIDs) == 0
}

// Collect extracts the entity IDs in text that need resolution. Channel
// links that already carry an explicit name (<#C123|general>) are
// skipped: the name is in the sigil itself.
func Collect(text string) *Entities {
	e := NewEntities()
	if text == "" {
		return e
	}
	for _, m := range userMentionRe.FindAllStringSubmatch(text, -1) {
		e.AddUser(m[1])
	}
	for _, m := range channelLinkRe.FindAllStringSubmatch(text, -1) {
		if m[2] == "" {
			e.AddChannel(m[1])
		}
	}
	return e
}

// FormatText substitutes resolved names into the sigils of text,
// falling back to raw IDs where no name is known, and decodes HTML
// entities.
func FormatText(text string, users, channels map[string]string) string {
	if text == "" {
		return ""
	}

	out := userMentionRe.ReplaceAllStringFunc(text, func(s string) string {
		id := userMentionRe.FindStringSubmatch(s)[1]
		if name, ok := users[id]; ok && name != "" {
			return "@" + name
		}
		return "@" + id
	})

	out = channelLinkRe.ReplaceAllStringFunc(out, func(s string) string {
		m := channelLinkRe.FindStringSubmatch(s)
		if m[2] != "" {
			return "#" + m[2]
		}
		if name, ok := channels[m[1]]; ok && name != "" {
			return "#" + name
		}
		return "#" + m[1]
	})

	out = urlLinkRe.ReplaceAllStringFunc(out, func(s string) string {
		m := urlLinkRe.FindStringSubmatch(s)
		if m[2] != "" {
			return m[2]
		}
		return m[1]
	})

	out = specialMentionRe.ReplaceAllString(out, "@$1")

	out = teamMentionRe.ReplaceAllStringFunc(out, func(s string) string {
		m := teamMentionRe.FindStringSubmatch(s)
		if m[2] != "" {
			return m[2]
		}
		return "@team"
	})

	out = htmlEntityRe.ReplaceAllStringFunc(out, func(s string) string {
		key := htmlEntityRe.FindStringSubmatch(s)[1]
		if v, ok := htmlEntities[key]; ok {
			return v
		}
		return s
	})

	return out
}

// Truncate shortens text to max characters with a trailing ellipsis.
func Truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}
