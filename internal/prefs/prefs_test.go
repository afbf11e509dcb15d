package prefs

import (
	"testing"
)

func TestNormalizeEmojiName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"eyes", "eyes"},
		{":eyes:", "eyes"},
		{"Pepe-Noted", "pepe_noted"},
		{":Pepe_Noted:", "pepe_noted"},
		{"pepe noted", "pepe_noted"},
		{"  :thumbsup:  ", "thumbsup"},
	}
	for _, tt := range tests {
		if got := NormalizeEmojiName(tt.in); got != tt.want {
			t.Errorf("NormalizeEmojiName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmojiPatternLookupNormalizes(t *testing.T) {
	p := &Preferences{}
	p.SetEmojiPattern("Pepe-Noted", "noted", true, 0)

	for _, name := range []string{"pepe-noted", ":Pepe_Noted:", "pepe_noted"} {
		if p.GetEmojiPattern(name) == nil {
			t.Errorf("GetEmojiPattern(%q) = nil, want pattern", name)
		}
	}
}

func TestSetEmojiPatternUpdatesExisting(t *testing.T) {
	p := &Preferences{}
	first, updated := p.SetEmojiPattern("eyes", "seen", false, 1)
	if updated {
		t.Fatal("first set reported update")
	}

	second, updated := p.SetEmojiPattern(":Eyes:", "acknowledged", true, 5)
	if !updated {
		t.Fatal("second set did not report update")
	}
	if second.ID != first.ID {
		t.Errorf("update created new id %q, want %q", second.ID, first.ID)
	}
	if len(p.EmojiPatterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(p.EmojiPatterns))
	}
	if got := p.EmojiPatterns[0].Meaning; got != "acknowledged" {
		t.Errorf("meaning = %q, want acknowledged", got)
	}
	if got := p.EmojiPatterns[0].PriorityAdjustment; got != 2 {
		t.Errorf("adjustment = %d, want clamp to 2", got)
	}
}

func TestAdjustmentClamp(t *testing.T) {
	p := &Preferences{}
	low, _ := p.SetEmojiPattern("down", "meh", false, -9)
	if low.PriorityAdjustment != -2 {
		t.Errorf("adjustment = %d, want -2", low.PriorityAdjustment)
	}
}

func TestAcknowledgmentEmojis(t *testing.T) {
	p := &Preferences{}
	p.SetEmojiPattern("eyes", "seen", true, 0)
	p.SetEmojiPattern("thinking_face", "considering", false, 0)
	p.SetEmojiPattern("white_check_mark", "done", true, 0)

	got := p.AcknowledgmentEmojis()
	want := []string{"eyes", "white_check_mark"}
	if len(got) != len(want) {
		t.Fatalf("AcknowledgmentEmojis = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AcknowledgmentEmojis[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRulesAndFacts(t *testing.T) {
	p := &Preferences{}
	if got := p.RulesText(); got != "No custom rules defined." {
		t.Errorf("empty RulesText = %q", got)
	}

	r := p.AddRule("always highlight messages from alice")
	if r.ID == "" || len(r.ID) != 8 {
		t.Errorf("rule id = %q, want 8 chars", r.ID)
	}
	f := p.AddFact("follow up with John by Friday")

	if !p.RemoveRule(r.ID) {
		t.Error("RemoveRule returned false for existing rule")
	}
	if p.RemoveRule("missing") {
		t.Error("RemoveRule returned true for missing rule")
	}
	if !p.RemoveFact(f.ID) {
		t.Error("RemoveFact returned false for existing fact")
	}
}

func TestStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := NewStorage(dir)

	// Missing file loads empty.
	if got := st.Load(); len(got.Rules) != 0 {
		t.Fatalf("fresh load rules = %d, want 0", len(got.Rules))
	}

	p := &Preferences{}
	p.AddRule("rule one")
	p.AddFact("fact one")
	p.SetEmojiPattern("eyes", "seen", true, 0)
	if err := st.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := st.Load()
	if len(loaded.Rules) != 1 || len(loaded.Facts) != 1 || len(loaded.EmojiPatterns) != 1 {
		t.Fatalf("round trip lost data: %+v", loaded)
	}
	if loaded.EmojiPatterns[0].Emoji != "eyes" {
		t.Errorf("emoji = %q, want eyes", loaded.EmojiPatterns[0].Emoji)
	}
}
