package format

import (
	"context"
	"testing"
	"time"

	"github.com/lunarhue/sidekick/internal/store"
)

func TestFormatText(t *testing.T) {
	users := map[string]string{"U111AAA": "alice", "W222BBB": "bob"}
	channels := map[string]string{"C333CCC": "general"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"user mention", "hey <@U111AAA>", "hey @alice"},
		{"workspace user", "ping <@W222BBB>", "ping @bob"},
		{"unknown user falls back to id", "cc <@U999ZZZ>", "cc @U999ZZZ"},
		{"mention with label", "hi <@U111AAA|someone>", "hi @alice"},
		{"channel with explicit name", "see <#C333CCC|random>", "see #random"},
		{"channel resolved", "see <#C333CCC>", "see #general"},
		{"unknown channel falls back to id", "see <#C777DDD>", "see #C777DDD"},
		{"url with label", "read <https://example.com/doc|the doc>", "read the doc"},
		{"bare url", "read <https://example.com/doc>", "read https://example.com/doc"},
		{"special mention", "<!here> please", "@here please"},
		{"team mention with label", "<!subteam^S123ABC|@platform> review", "@platform review"},
		{"team mention without label", "<!subteam^S123ABC> review", "@team review"},
		{"html entities", "a &amp; b &lt;c&gt; &quot;d&quot;&nbsp;e", `a & b <c> "d" e`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatText(tt.in, users, channels)
			if got != tt.want {
				t.Errorf("FormatText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCollect(t *testing.T) {
	e := Collect("hey <@U111AAA> see <#C333CCC> and <#C444DDD|named> from <@W222BBB>")

	if _, ok := e.UserIDs["U111AAA"]; !ok {
		t.Error("expected U111AAA collected")
	}
	if _, ok := e.UserIDs["W222BBB"]; !ok {
		t.Error("expected W222BBB collected")
	}
	if _, ok := e.ChannelIDs["C333CCC"]; !ok {
		t.Error("expected C333CCC collected")
	}
	if _, ok := e.ChannelIDs["C444DDD"]; ok {
		t.Error("channel with explicit name should not need resolution")
	}
}

func TestCollectEmpty(t *testing.T) {
	e := Collect("")
	if !e.Empty() {
		t.Errorf("Collect(\"\") not empty: %+v", e)
	}
}

type fakeLookup struct {
	users    map[string]store.User
	channels map[string]store.Channel
	calls    int
}

func (f *fakeLookup) GetUsersBatch(_ context.Context, ids []string) ([]store.User, error) {
	f.calls++
	var out []store.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeLookup) GetChannelsBatch(_ context.Context, ids []string) ([]store.Channel, error) {
	f.calls++
	var out []store.Channel
	for _, id := range ids {
		if ch, ok := f.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func TestResolverBatchesAndCaches(t *testing.T) {
	fake := &fakeLookup{
		users: map[string]store.User{
			"U1": {ID: "U1", DisplayName: "alice"},
			"U2": {ID: "U2", RealName: "Bob Builder"},
		},
		channels: map[string]store.Channel{
			"C1": {ID: "C1", Name: "general"},
		},
	}
	r := NewResolver(fake, time.Minute)

	e := NewEntities()
	e.AddUser("U1")
	e.AddUser("U2")
	e.AddUser("U404")
	e.AddChannel("C1")

	rc, err := r.Resolve(context.Background(), e)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got, want := rc.UserName("U1"), "alice"; got != want {
		t.Errorf("UserName(U1) = %q, want %q", got, want)
	}
	if got, want := rc.UserName("U2"), "Bob Builder"; got != want {
		t.Errorf("UserName(U2) = %q, want %q", got, want)
	}
	if got, want := rc.UserName("U404"), "U404"; got != want {
		t.Errorf("UserName(U404) = %q, want %q", got, want)
	}
	if got, want := rc.ChannelName("C1"), "general"; got != want {
		t.Errorf("ChannelName(C1) = %q, want %q", got, want)
	}

	// One users batch + one channels batch.
	if fake.calls != 2 {
		t.Errorf("store calls = %d, want 2", fake.calls)
	}

	// Second resolve for the same known IDs should be fully cached.
	e2 := NewEntities()
	e2.AddUser("U1")
	e2.AddChannel("C1")
	if _, err := r.Resolve(context.Background(), e2); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("store calls after cached resolve = %d, want 2", fake.calls)
	}
}

func TestResolverTTLExpiry(t *testing.T) {
	fake := &fakeLookup{
		users: map[string]store.User{"U1": {ID: "U1", Name: "alice"}},
	}
	r := NewResolver(fake, time.Nanosecond)

	e := NewEntities()
	e.AddUser("U1")
	if _, err := r.Resolve(context.Background(), e); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := r.Resolve(context.Background(), e); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("store calls = %d, want 2 (entry should have expired)", fake.calls)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}
	long := Truncate("abcdefghij", 8)
	if got, want := long, "abcde..."; got != want {
		t.Errorf("Truncate = %q, want %q", got, want)
	}
}
