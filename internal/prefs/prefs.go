// Package prefs stores user-defined prioritization rules, remembered
// facts, and emoji communication patterns as a JSON file under the
// per-user state directory.
package prefs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Rule is a user-defined prioritization rule.
type Rule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// Fact is a remembered fact about the user or their tasks.
type Fact struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// EmojiPattern records what one of the user's emoji reactions means.
// MarksAsHandled patterns demote reacted items to LOW priority.
type EmojiPattern struct {
	ID                 string `json:"id"`
	Emoji              string `json:"emoji"`
	Meaning            string `json:"meaning"`
	MarksAsHandled     bool   `json:"marks_as_handled"`
	PriorityAdjustment int    `json:"priority_adjustment"` // clamped to [-2, 2]
	CreatedAt          string `json:"created_at"`
}

// Preferences is the complete persisted preference set.
type Preferences struct {
	Rules         []Rule         `json:"rules"`
	Facts         []Fact         `json:"facts"`
	EmojiPatterns []EmojiPattern `json:"emoji_patterns"`
}

func newID() string {
	return uuid.NewString()[:8]
}

func nowStamp() string {
	return time.Now().Format(time.RFC3339)
}

// NormalizeEmojiName canonicalizes an emoji name to the upstream
// convention: lowercase, underscores, no surrounding colons.
// "pepe-noted", ":Pepe_Noted:" and "pepe_noted" all normalize equal.
func NormalizeEmojiName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, ":")
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func clampAdjustment(n int) int {
	if n < -2 {
		return -2
	}
	if n > 2 {
		return 2
	}
	return n
}

// AddRule appends a new rule and returns it.
func (p *Preferences) AddRule(description string) Rule {
	r := Rule{ID: newID(), Description: description, CreatedAt: nowStamp()}
	p.Rules = append(p.Rules, r)
	return r
}

// RemoveRule deletes the rule with the given ID. Reports whether a
// rule was removed.
func (p *Preferences) RemoveRule(id string) bool {
	for i, r := range p.Rules {
		if r.ID == id {
			p.Rules = append(p.Rules[:i], p.Rules[i+1:]...)
			return true
		}
	}
	return false
}

// AddFact appends a new fact and returns it.
func (p *Preferences) AddFact(content string) Fact {
	f := Fact{ID: newID(), Content: content, CreatedAt: nowStamp()}
	p.Facts = append(p.Facts, f)
	return f
}

// RemoveFact deletes the fact with the given ID.
func (p *Preferences) RemoveFact(id string) bool {
	for i, f := range p.Facts {
		if f.ID == id {
			p.Facts = append(p.Facts[:i], p.Facts[i+1:]...)
			return true
		}
	}
	return false
}

// GetEmojiPattern returns the pattern whose emoji equals the
// normalized form of name, or nil.
func (p *Preferences) GetEmojiPattern(name string) *EmojiPattern {
	normalized := NormalizeEmojiName(name)
	for i := range p.EmojiPatterns {
		if p.EmojiPatterns[i].Emoji == normalized {
			return &p.EmojiPatterns[i]
		}
	}
	return nil
}

// SetEmojiPattern adds a pattern for emoji, or updates the existing
// one with the same normalized name. The adjustment is clamped to
// [-2, 2]. Returns the stored pattern and whether it was an update.
func (p *Preferences) SetEmojiPattern(emoji, meaning string, marksAsHandled bool, adjustment int) (EmojiPattern, bool) {
	normalized := NormalizeEmojiName(emoji)
	if existing := p.GetEmojiPattern(normalized); existing != nil {
		existing.Meaning = meaning
		existing.MarksAsHandled = marksAsHandled
		existing.PriorityAdjustment = clampAdjustment(adjustment)
		return *existing, true
	}
	pat := EmojiPattern{
		ID:                 newID(),
		Emoji:              normalized,
		Meaning:            meaning,
		MarksAsHandled:     marksAsHandled,
		PriorityAdjustment: clampAdjustment(adjustment),
		CreatedAt:          nowStamp(),
	}
	p.EmojiPatterns = append(p.EmojiPatterns, pat)
	return pat, false
}

// RemoveEmojiPattern deletes the pattern with the given ID.
func (p *Preferences) RemoveEmojiPattern(id string) bool {
	for i, pat := range p.EmojiPatterns {
		if pat.ID == id {
			p.EmojiPatterns = append(p.EmojiPatterns[:i], p.EmojiPatterns[i+1:]...)
			return true
		}
	}
	return false
}

// AcknowledgmentEmojis lists the emoji names whose patterns mark
// items as handled.
func (p *Preferences) AcknowledgmentEmojis() []string {
	var out []string
	for _, pat := range p.EmojiPatterns {
		if pat.MarksAsHandled {
			out = append(out, pat.Emoji)
		}
	}
	return out
}

// RulesText renders the rules for inclusion in the system prompt.
func (p *Preferences) RulesText() string {
	if len(p.Rules) == 0 {
		return "No custom rules defined."
	}
	lines := []string{"Custom prioritization rules:"}
	for _, r := range p.Rules {
		lines = append(lines, "- "+r.Description)
	}
	return strings.Join(lines, "\n")
}

// FactsText renders the remembered facts for the system prompt.
func (p *Preferences) FactsText() string {
	if len(p.Facts) == 0 {
		return "No remembered facts."
	}
	lines := []string{"Remembered facts:"}
	for _, f := range p.Facts {
		lines = append(lines, "- "+f.Content)
	}
	return strings.Join(lines, "\n")
}

// EmojiPatternsText renders the emoji patterns for the system prompt.
func (p *Preferences) EmojiPatternsText() string {
	if len(p.EmojiPatterns) == 0 {
		return "No emoji patterns defined."
	}
	lines := []string{"Your emoji communication patterns:"}
	for _, pat := range p.EmojiPatterns {
		note := ""
		if pat.MarksAsHandled {
			note = " (marks as handled)"
		}
		lines = append(lines, "- :"+pat.Emoji+": means \""+pat.Meaning+"\""+note)
	}
	return strings.Join(lines, "\n")
}
