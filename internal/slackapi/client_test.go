package slackapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lunarhue/sidekick/internal/rategate"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "xoxp-test", rategate.NewRegistry())
}

func TestAuthenticateStoresIdentity(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth.test" {
			t.Errorf("path = %q, want /auth.test", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxp-test" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true, "user": "alice", "user_id": "U0001", "team_id": "T0001", "team": "acme",
		})
	})

	info, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.UserID != "U0001" {
		t.Errorf("UserID = %q, want U0001", info.UserID)
	}
	if c.UserID() != "U0001" || c.UserName() != "alice" || c.TeamID() != "T0001" {
		t.Errorf("client identity = (%q, %q, %q)", c.UserID(), c.UserName(), c.TeamID())
	}
}

func TestListConversationsPagesAndFilters(t *testing.T) {
	page := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page++
		switch page {
		case 1:
			json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"channels": []map[string]any{
					{"id": "C1", "name": "general", "is_member": true},
					{"id": "C2", "name": "random", "is_member": false},
					{"id": "D1", "is_im": true, "user": "U9"},
				},
				"response_metadata": map[string]any{"next_cursor": "abc"},
			})
		default:
			if got := r.FormValue("cursor"); got != "abc" {
				t.Errorf("cursor = %q, want abc", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"channels": []map[string]any{
					{"id": "G1", "is_mpim": true, "name": "mpdm-group"},
				},
			})
		}
	})

	convs, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	var ids []string
	for _, cv := range convs {
		ids = append(ids, cv.ID)
	}
	want := []string{"C1", "D1", "G1"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestHistoryPassesOldest(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("oldest"); got != "1700000000.000100" {
			t.Errorf("oldest = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"type": "message", "ts": "1700000002.000000", "user": "U1", "text": "later"},
				{"type": "message", "ts": "1700000001.000000", "user": "U2", "text": "earlier"},
			},
		})
	})

	msgs, err := c.History(context.Background(), "C1", "1700000000.000100", 100)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Ts != "1700000002.000000" {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	})

	_, err := c.History(context.Background(), "C404", "", 10)
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if ae.Code != "channel_not_found" {
		t.Errorf("Code = %q", ae.Code)
	}
	if !IsChannelInaccessible(err) {
		t.Error("channel_not_found should be classified inaccessible")
	}
	if ae.Throttled() {
		t.Error("channel_not_found must not be treated as throttling")
	}
}

func TestThrottledResponseIsRetried(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "user": map[string]any{"id": "U1", "name": "bob"}})
	})

	u, err := c.UserInfo(context.Background(), "U1")
	if err != nil {
		t.Fatalf("UserInfo after throttle: %v", err)
	}
	if u == nil || u.Name != "bob" {
		t.Errorf("user = %+v", u)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestChannelTypeMapping(t *testing.T) {
	tests := []struct {
		name string
		conv Conversation
		want string
	}{
		{"im", Conversation{IsIM: true}, "im"},
		{"mpim", Conversation{IsMPIM: true}, "mpim"},
		{"private", Conversation{IsPrivate: true}, "private_channel"},
		{"public", Conversation{IsChannel: true}, "public_channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conv.ChannelType(); got != tt.want {
				t.Errorf("ChannelType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1", time.Second},
		{"0.5", 500 * time.Millisecond},
		{"", 0},
		{"soon", 0},
		{"-2", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
