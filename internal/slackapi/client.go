// Package slackapi is the upstream workspace API client. Every call passes
// through a per-method rate gate; responses are plain JSON envelopes with an
// ok flag and an error code.
package slackapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lunarhue/sidekick/internal/rategate"
)

// Client talks to the upstream messaging API on behalf of one user token.
type Client struct {
	httpc   *http.Client
	baseURL string
	token   string
	gates   *rategate.Registry

	userID   string
	userName string
	teamID   string
}

// NewClient builds a client for the given API root and user token. All
// outbound calls share the provided gate registry.
func NewClient(baseURL, token string, gates *rategate.Registry) *Client {
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	if gates == nil {
		gates = rategate.NewRegistry()
	}
	return &Client{
		httpc:   &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		gates:   gates,
	}
}

// UserID returns the authenticated user's ID (set by Authenticate).
func (c *Client) UserID() string { return c.userID }

// UserName returns the authenticated user's login name.
func (c *Client) UserName() string { return c.userName }

// TeamID returns the workspace ID.
func (c *Client) TeamID() string { return c.teamID }

// Authenticate verifies the token via auth.test and records the caller's
// identity for mention and self-DM detection.
func (c *Client) Authenticate(ctx context.Context) (*AuthInfo, error) {
	var info AuthInfo
	err := c.call(ctx, "auth.test", nil, &info)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	c.userID = info.UserID
	c.userName = info.User
	c.teamID = info.TeamID
	slog.Info("authenticated", "user", info.User, "user_id", info.UserID, "team", info.Team)
	return &info, nil
}

// ListConversations fetches every conversation visible to the token: public
// and private channels the user is a member of, plus all DMs and group DMs.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var all []Conversation
	cursor := ""
	for {
		params := url.Values{
			"types":            {"public_channel,private_channel,mpim,im"},
			"exclude_archived": {"true"},
			"limit":            {"200"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp conversationsListResponse
		if err := c.call(ctx, "conversations.list", params, &resp); err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}

		for _, conv := range resp.Channels {
			// DMs carry no is_member flag; they are always ours.
			if conv.IsMember || conv.IsIM || conv.IsMPIM {
				all = append(all, conv)
			}
		}

		cursor = resp.Metadata.NextCursor
		if cursor == "" {
			break
		}
	}
	slog.Debug("listed conversations", "count", len(all))
	return all, nil
}

// History fetches up to max messages from a channel, newest first, starting
// strictly after oldest when given. Paging is internal.
func (c *Client) History(ctx context.Context, channelID, oldest string, max int) ([]Message, error) {
	if max <= 0 {
		max = 100
	}
	var all []Message
	cursor := ""
	for {
		page := max - len(all)
		if page > 200 {
			page = 200
		}
		params := url.Values{
			"channel": {channelID},
			"limit":   {strconv.Itoa(page)},
		}
		if oldest != "" {
			params.Set("oldest", oldest)
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp historyResponse
		if err := c.call(ctx, "conversations.history", params, &resp); err != nil {
			return nil, fmt.Errorf("history %s: %w", channelID, err)
		}
		all = append(all, resp.Messages...)

		if len(all) >= max {
			break
		}
		cursor = resp.Metadata.NextCursor
		if cursor == "" {
			break
		}
	}
	return all, nil
}

// Replies fetches a thread, parent included as the first element.
func (c *Client) Replies(ctx context.Context, channelID, threadTs string, max int) ([]Message, error) {
	if max <= 0 {
		max = 100
	}
	params := url.Values{
		"channel": {channelID},
		"ts":      {threadTs},
		"limit":   {strconv.Itoa(max)},
	}
	var resp historyResponse
	if err := c.call(ctx, "conversations.replies", params, &resp); err != nil {
		return nil, fmt.Errorf("replies %s/%s: %w", channelID, threadTs, err)
	}
	return resp.Messages, nil
}

// UserInfo fetches one user record.
func (c *Client) UserInfo(ctx context.Context, userID string) (*User, error) {
	params := url.Values{"user": {userID}}
	var resp userInfoResponse
	if err := c.call(ctx, "users.info", params, &resp); err != nil {
		return nil, fmt.Errorf("user info %s: %w", userID, err)
	}
	return resp.User, nil
}

// ListUsers fetches the full user directory, paging internally.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var all []User
	cursor := ""
	for {
		params := url.Values{"limit": {"200"}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp usersListResponse
		if err := c.call(ctx, "users.list", params, &resp); err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		all = append(all, resp.Members...)
		cursor = resp.Metadata.NextCursor
		if cursor == "" {
			break
		}
	}
	return all, nil
}

// ListReminders fetches the authenticated user's reminders.
func (c *Client) ListReminders(ctx context.Context) ([]Reminder, error) {
	var resp remindersResponse
	if err := c.call(ctx, "reminders.list", nil, &resp); err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return resp.Reminders, nil
}

// SearchMessages runs an upstream full-text search, newest first.
func (c *Client) SearchMessages(ctx context.Context, query string, count int) ([]SearchMatch, error) {
	if count <= 0 {
		count = 20
	}
	params := url.Values{
		"query":    {query},
		"count":    {strconv.Itoa(count)},
		"sort":     {"timestamp"},
		"sort_dir": {"desc"},
	}
	var resp searchResponse
	if err := c.call(ctx, "search.messages", params, &resp); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return resp.Messages.Matches, nil
}

// call posts one API method through its rate gate and decodes the response
// into out, which must embed apiEnvelope or be compatible with it.
func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	return c.gates.Do(ctx, method, func(ctx context.Context) error {
		body := ""
		if params != nil {
			body = params.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return &APIError{
				Method:     method,
				StatusCode: resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read response: %w", method, err)
		}

		var env apiEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
		if !env.OK {
			return &APIError{
				Method:     method,
				Code:       env.Error,
				StatusCode: resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("%s: decode payload: %w", method, err)
			}
		}
		return nil
	})
}
