package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lunarhue/sidekick/internal/slackapi"
	"github.com/lunarhue/sidekick/internal/store"
)

// memStore is a minimal in-memory store.Store for sync tests.
type memStore struct {
	store.Store // unimplemented methods panic if reached

	messages  []store.Message
	reactions map[int64][]store.Reaction
	cursors   map[string]string
	users     map[string]store.User
	channels  map[string]store.Channel
	reminders map[string]store.Reminder
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		reactions: map[int64][]store.Reaction{},
		cursors:   map[string]string{},
		users:     map[string]store.User{},
		channels:  map[string]store.Channel{},
		reminders: map[string]store.Reminder{},
	}
}

func (m *memStore) UpsertMessage(ctx context.Context, msg *store.Message) (int64, error) {
	for _, existing := range m.messages {
		if existing.ChannelID == msg.ChannelID && existing.Ts == msg.Ts {
			return existing.ID, nil
		}
	}
	m.nextID++
	msg.ID = m.nextID
	m.messages = append(m.messages, *msg)
	return msg.ID, nil
}

func (m *memStore) ReplaceReactions(ctx context.Context, messageID int64, reactions []store.Reaction) error {
	m.reactions[messageID] = reactions
	return nil
}

func (m *memStore) GetCursor(ctx context.Context, channelID string) (*store.SyncCursor, error) {
	ts, ok := m.cursors[channelID]
	if !ok {
		return nil, nil
	}
	return &store.SyncCursor{ChannelID: channelID, LastTs: ts}, nil
}

func (m *memStore) GetCursorsBatch(ctx context.Context, ids []string) (map[string]store.SyncCursor, error) {
	out := map[string]store.SyncCursor{}
	for _, id := range ids {
		if ts, ok := m.cursors[id]; ok {
			out[id] = store.SyncCursor{ChannelID: id, LastTs: ts}
		}
	}
	return out, nil
}

func (m *memStore) SetCursor(ctx context.Context, channelID, lastTs string) error {
	m.cursors[channelID] = lastTs
	return nil
}

func (m *memStore) UpsertUser(ctx context.Context, u *store.User) error {
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) UpsertChannel(ctx context.Context, ch *store.Channel) error {
	m.channels[ch.ID] = *ch
	return nil
}

func (m *memStore) UpsertReminder(ctx context.Context, r *store.Reminder) error {
	m.reminders[r.ID] = *r
	return nil
}

// fakeSlack serves canned history/replies and records calls.
type fakeSlack struct {
	history      map[string][]slackapi.Message // newest first, as the API returns
	historyErr   error
	replies      map[string][]slackapi.Message // keyed channel:threadTs
	repliesErr   error
	convs        []slackapi.Conversation
	reminders    []slackapi.Reminder
	selfID       string
	historyCalls []string
}

func (f *fakeSlack) History(ctx context.Context, channelID, oldest string, max int) ([]slackapi.Message, error) {
	f.historyCalls = append(f.historyCalls, channelID)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var out []slackapi.Message
	for _, m := range f.history[channelID] {
		if oldest == "" || store.TsAfter(m.Ts, oldest) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSlack) Replies(ctx context.Context, channelID, threadTs string, max int) ([]slackapi.Message, error) {
	if f.repliesErr != nil {
		return nil, f.repliesErr
	}
	return f.replies[channelID+":"+threadTs], nil
}

func (f *fakeSlack) UserInfo(ctx context.Context, userID string) (*slackapi.User, error) {
	return &slackapi.User{ID: userID, Name: "user-" + userID}, nil
}

func (f *fakeSlack) ListConversations(ctx context.Context) ([]slackapi.Conversation, error) {
	return f.convs, nil
}

func (f *fakeSlack) ListReminders(ctx context.Context) ([]slackapi.Reminder, error) {
	return f.reminders, nil
}

func (f *fakeSlack) UserID() string { return f.selfID }

func TestSyncChannelAdvancesCursor(t *testing.T) {
	ms := newMemStore()
	fs := &fakeSlack{
		history: map[string][]slackapi.Message{
			"C1": {
				{Type: "message", Ts: "1500.000300", User: "U2", Text: "newest"},
				{Type: "message", Ts: "1500.000200", User: "U2", Text: "middle"},
				{Type: "message", Ts: "1500.000100", User: "U2", Text: "oldest"},
			},
		},
	}
	w := NewWorker(ms, fs, nil, 200, 5)

	res, err := w.SyncChannel(context.Background(), "C1")
	if err != nil {
		t.Fatalf("SyncChannel: %v", err)
	}
	if res.NewMessages != 3 {
		t.Errorf("new messages = %d, want 3", res.NewMessages)
	}
	if res.Cursor != "1500.000300" {
		t.Errorf("cursor = %q, want newest ts", res.Cursor)
	}
	if ms.cursors["C1"] != "1500.000300" {
		t.Errorf("stored cursor = %q", ms.cursors["C1"])
	}

	// Oldest first in the store.
	if ms.messages[0].Ts != "1500.000100" {
		t.Errorf("first persisted ts = %q, want oldest", ms.messages[0].Ts)
	}

	// Author cached once.
	if _, ok := ms.users["U2"]; !ok {
		t.Error("author not cached")
	}
}

func TestSyncChannelStrictlyAfterCursor(t *testing.T) {
	ms := newMemStore()
	ms.cursors["C1"] = "1500.000200"
	fs := &fakeSlack{
		history: map[string][]slackapi.Message{
			"C1": {
				{Type: "message", Ts: "1500.000300", User: "U2", Text: "new"},
				{Type: "message", Ts: "1500.000200", User: "U2", Text: "at cursor"},
			},
		},
	}
	w := NewWorker(ms, fs, nil, 200, 5)

	res, err := w.SyncChannel(context.Background(), "C1")
	if err != nil {
		t.Fatalf("SyncChannel: %v", err)
	}
	if res.NewMessages != 1 {
		t.Errorf("new messages = %d, want 1 (ts equal to cursor excluded)", res.NewMessages)
	}
	if len(ms.messages) != 1 || ms.messages[0].Ts != "1500.000300" {
		t.Errorf("persisted = %+v", ms.messages)
	}
}

func TestSyncChannelEmptySetsSentinel(t *testing.T) {
	ms := newMemStore()
	fs := &fakeSlack{history: map[string][]slackapi.Message{}}
	w := NewWorker(ms, fs, nil, 200, 5)

	res, err := w.SyncChannel(context.Background(), "C9")
	if err != nil {
		t.Fatalf("SyncChannel: %v", err)
	}
	if res.Cursor != "0" {
		t.Errorf("cursor = %q, want sentinel \"0\"", res.Cursor)
	}

	// A later sync of a still-empty channel leaves the sentinel alone.
	res, err = w.SyncChannel(context.Background(), "C9")
	if err != nil {
		t.Fatalf("SyncChannel: %v", err)
	}
	if res.Cursor != "0" || ms.cursors["C9"] != "0" {
		t.Errorf("sentinel not stable: %q / %q", res.Cursor, ms.cursors["C9"])
	}
}

func TestSyncChannelDrillsThreads(t *testing.T) {
	ms := newMemStore()
	fs := &fakeSlack{
		history: map[string][]slackapi.Message{
			"C1": {
				{Type: "message", Ts: "1600.000100", User: "U2", Text: "parent", ReplyCount: 2},
			},
		},
		replies: map[string][]slackapi.Message{
			"C1:1600.000100": {
				{Type: "message", Ts: "1600.000100", User: "U2", Text: "parent", ThreadTs: "1600.000100", ReplyCount: 2},
				{Type: "message", Ts: "1600.000200", User: "U3", Text: "reply 1", ThreadTs: "1600.000100"},
				{Type: "message", Ts: "1600.000300", User: "U4", Text: "reply 2", ThreadTs: "1600.000100"},
			},
		},
	}
	w := NewWorker(ms, fs, nil, 200, 5)

	res, err := w.SyncChannel(context.Background(), "C1")
	if err != nil {
		t.Fatalf("SyncChannel: %v", err)
	}
	if res.ThreadReplies != 2 {
		t.Errorf("thread replies = %d, want 2", res.ThreadReplies)
	}
	if len(ms.messages) != 3 {
		t.Errorf("stored messages = %d, want 3 (parent not duplicated)", len(ms.messages))
	}
}

func TestSyncChannelThreadFailureDoesNotSkipThread(t *testing.T) {
	ms := newMemStore()
	fs := &fakeSlack{
		history: map[string][]slackapi.Message{
			"C1": {
				{Type: "message", Ts: "1600.000100", User: "U2", Text: "parent", ReplyCount: 3},
				{Type: "message", Ts: "1600.000050", User: "U2", Text: "earlier"},
			},
		},
		repliesErr: errors.New("upstream unavailable"),
	}
	w := NewWorker(ms, fs, nil, 200, 5)

	_, err := w.SyncChannel(context.Background(), "C1")
	if err == nil {
		t.Fatal("SyncChannel should surface the thread fetch failure")
	}
	// The plain message before the parent is kept; the cursor stops
	// below the failed parent so its replies are retried.
	if got := ms.cursors["C1"]; got != "1600.000050" {
		t.Fatalf("cursor = %q, want %q (must not pass the failed parent)", got, "1600.000050")
	}

	// Once replies come back, the next sweep picks the thread up.
	fs.repliesErr = nil
	fs.replies = map[string][]slackapi.Message{
		"C1:1600.000100": {
			{Type: "message", Ts: "1600.000100", User: "U2", Text: "parent", ThreadTs: "1600.000100", ReplyCount: 3},
			{Type: "message", Ts: "1600.000200", User: "U3", Text: "reply", ThreadTs: "1600.000100"},
		},
	}
	res, err := w.SyncChannel(context.Background(), "C1")
	if err != nil {
		t.Fatalf("retry SyncChannel: %v", err)
	}
	if res.ThreadReplies != 1 {
		t.Errorf("thread replies on retry = %d, want 1", res.ThreadReplies)
	}
	if got := ms.cursors["C1"]; got != "1600.000100" {
		t.Errorf("cursor after retry = %q, want %q", got, "1600.000100")
	}
}

func TestSyncChannelInaccessibleErrorSurvivesWrapping(t *testing.T) {
	ms := newMemStore()
	fs := &fakeSlack{
		historyErr: &slackapi.APIError{Method: "conversations.history", Code: "channel_not_found"},
	}
	w := NewWorker(ms, fs, nil, 200, 5)

	_, err := w.SyncChannel(context.Background(), "C_GONE")
	if err == nil {
		t.Fatal("SyncChannel should surface the history failure")
	}
	// The scheduler downgrades these to a skip; the worker's wrapping
	// must keep the upstream code reachable.
	if !slackapi.IsChannelInaccessible(err) {
		t.Errorf("error %v not recognized as an inaccessible channel", err)
	}
}

func TestSyncChannelStoresReactions(t *testing.T) {
	ms := newMemStore()
	fs := &fakeSlack{
		history: map[string][]slackapi.Message{
			"C1": {
				{Type: "message", Ts: "1700.000100", User: "U2", Text: "hello",
					Reactions: []slackapi.Reaction{{Name: "eyes", Users: []string{"U1", "U3"}, Count: 2}}},
			},
		},
	}
	w := NewWorker(ms, fs, nil, 200, 5)

	if _, err := w.SyncChannel(context.Background(), "C1"); err != nil {
		t.Fatalf("SyncChannel: %v", err)
	}
	stored := ms.reactions[ms.messages[0].ID]
	if len(stored) != 2 {
		t.Fatalf("reactions = %d, want 2", len(stored))
	}
	if stored[0].Name != "eyes" {
		t.Errorf("reaction name = %q", stored[0].Name)
	}
}

func TestNeedsSync(t *testing.T) {
	tests := []struct {
		name       string
		latestHint string
		lastTs     string
		want       bool
	}{
		{"hint newer than cursor", "1500.000200", "1500.000100", true},
		{"hint equals cursor", "1500.000000", "1500.000000", false},
		{"hint older than cursor", "1500.000100", "1500.000200", false},
		{"empty cursor", "1500.000100", "", true},
		{"no hint, confirmed empty", "", "0", false},
		{"no hint, has cursor", "", "1500.000100", true},
		{"fraction width differs", "1500.0", "1500.000000", false},
	}
	for _, tt := range tests {
		if got := needsSync(tt.latestHint, tt.lastTs); got != tt.want {
			t.Errorf("%s: needsSync(%q, %q) = %v, want %v", tt.name, tt.latestHint, tt.lastTs, got, tt.want)
		}
	}
}

func TestChannelPriorityOrdering(t *testing.T) {
	self := slackapi.Conversation{ID: "D1", IsIM: true, User: "U111"}
	dm := slackapi.Conversation{ID: "D2", IsIM: true, User: "U222"}
	mpim := slackapi.Conversation{ID: "G1", IsMPIM: true}
	unread := slackapi.Conversation{ID: "C1", IsChannel: true, UnreadCountDisplay: 3}
	quiet := slackapi.Conversation{ID: "C2", IsChannel: true}

	order := []struct {
		conv slackapi.Conversation
		want int
	}{
		{self, 0}, {dm, 1}, {mpim, 2}, {unread, 3}, {quiet, 10},
	}
	for _, o := range order {
		if got := channelPriority(o.conv, "U111"); got != o.want {
			t.Errorf("priority(%s) = %d, want %d", o.conv.ID, got, o.want)
		}
	}
}

func TestTickSkipsUpToDateChannels(t *testing.T) {
	ms := newMemStore()
	ms.cursors["C1"] = "1500.000000"
	ms.cursors["C2"] = "1400.000000"

	fs := &fakeSlack{
		selfID: "U111",
		convs: []slackapi.Conversation{
			{ID: "C1", IsChannel: true, IsMember: true, Latest: &slackapi.Latest{Ts: "1500.0"}},
			{ID: "C2", IsChannel: true, IsMember: true, Latest: &slackapi.Latest{Ts: "1450.000000"}},
		},
		history: map[string][]slackapi.Message{
			"C2": {{Type: "message", Ts: "1450.000000", User: "U2", Text: "new"}},
		},
	}
	w := NewWorker(ms, fs, nil, 200, 5)
	sched := NewScheduler(ms, fs, w, time.Minute, 2)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// C1's hint equals its cursor (different fraction widths), so only
	// C2 is fetched.
	if len(fs.historyCalls) != 1 || fs.historyCalls[0] != "C2" {
		t.Errorf("history calls = %v, want [C2]", fs.historyCalls)
	}
	if ms.cursors["C2"] != "1450.000000" {
		t.Errorf("C2 cursor = %q", ms.cursors["C2"])
	}
}

func TestTickPersistsChannelsAndReminders(t *testing.T) {
	ms := newMemStore()
	at := time.Now().Add(time.Hour).Unix()
	fs := &fakeSlack{
		selfID: "U111",
		convs: []slackapi.Conversation{
			{ID: "D1", IsIM: true, User: "U111"},
			{ID: "D2", IsIM: true, User: "U222"},
		},
		reminders: []slackapi.Reminder{
			{ID: "Rm1", User: "U111", Text: "review budget", Time: at},
		},
	}
	w := NewWorker(ms, fs, nil, 200, 5)
	sched := NewScheduler(ms, fs, w, time.Minute, 2)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// First tick persists channel metadata.
	if len(ms.channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(ms.channels))
	}
	if !ms.channels["D1"].IsSelfDM {
		t.Error("self-DM not flagged")
	}
	if ms.channels["D2"].IsSelfDM {
		t.Error("peer DM flagged as self-DM")
	}
	if ms.channels["D2"].Name != "U222" {
		t.Errorf("DM name = %q, want peer user ID", ms.channels["D2"].Name)
	}

	if _, ok := ms.reminders["Rm1"]; !ok {
		t.Error("reminder not stored")
	}
}
