package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JSONL record shapes for export/import. Messages are referenced by
// their (channel_id, ts) natural key so surrogate IDs do not need to
// survive the round trip.

type channelRec struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	ChannelType string `json:"channel_type"`
	IsArchived  bool   `json:"is_archived,omitempty"`
	IsSelfDM    bool   `json:"is_self_dm,omitempty"`
}

type userRec struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	RealName    string `json:"real_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

type messageRec struct {
	ChannelID   string `json:"channel_id"`
	Ts          string `json:"ts"`
	UserID      string `json:"user_id,omitempty"`
	Text        string `json:"text,omitempty"`
	ThreadTs    string `json:"thread_ts,omitempty"`
	ReplyCount  int    `json:"reply_count,omitempty"`
	IsEdited    bool   `json:"is_edited,omitempty"`
	MessageType string `json:"message_type,omitempty"`
}

type reactionRec struct {
	ChannelID string `json:"channel_id"`
	Ts        string `json:"ts"`
	Name      string `json:"name"`
	UserID    string `json:"user_id"`
}

type embeddingRec struct {
	ChannelID string    `json:"channel_id"`
	Ts        string    `json:"ts"`
	Model     string    `json:"model,omitempty"`
	Vector    []float32 `json:"vector"`
}

type cursorRec struct {
	ChannelID string `json:"channel_id"`
	LastTs    string `json:"last_ts"`
}

type reminderRec struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id,omitempty"`
	Text       string     `json:"text"`
	Time       *time.Time `json:"time,omitempty"`
	CompleteTs *time.Time `json:"complete_ts,omitempty"`
	Recurring  bool       `json:"recurring,omitempty"`
}

// writeJSONL streams records into dir/name.jsonl, one JSON object per
// line. next returns (record, ok); ok=false ends the file.
func writeJSONL(dir, name string, next func() (any, bool, error)) (int, error) {
	path := filepath.Join(dir, name+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	count := 0
	for {
		rec, ok, err := next()
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}
		if err := enc.Encode(rec); err != nil {
			return count, fmt.Errorf("encode %s record: %w", name, err)
		}
		count++
	}
	if err := w.Flush(); err != nil {
		return count, err
	}
	return count, f.Sync()
}

// readJSONL calls fn for each line of dir/name.jsonl. A missing file
// is not an error: partial export directories import fine.
func readJSONL[T any](dir, name string, fn func(T) error) (int, error) {
	path := filepath.Join(dir, name+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			return count, fmt.Errorf("%s.jsonl line %d: %w", name, count+1, err)
		}
		if err := fn(rec); err != nil {
			return count, err
		}
		count++
	}
	return count, scanner.Err()
}
