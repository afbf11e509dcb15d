package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if got := cfg.Slack.PollIntervalSeconds; got != 60 {
		t.Errorf("PollIntervalSeconds = %d, want 60", got)
	}
	if got := cfg.Slack.SyncConcurrency; got != 10 {
		t.Errorf("SyncConcurrency = %d, want 10", got)
	}
	if got := cfg.Agent.MaxRecentTurns; got != 4 {
		t.Errorf("MaxRecentTurns = %d, want 4", got)
	}
	if got := cfg.Agent.SummarizeThreshold; got != 6 {
		t.Errorf("SummarizeThreshold = %d, want 6", got)
	}
	if got := cfg.Agent.MaxSummaryTokens; got != 1000 {
		t.Errorf("MaxSummaryTokens = %d, want 1000", got)
	}
	if got := cfg.Embedding.Dimension; got != 384 {
		t.Errorf("Embedding.Dimension = %d, want 384", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.PollIntervalSeconds != 60 {
		t.Errorf("missing file should yield defaults, got poll interval %d", cfg.Slack.PollIntervalSeconds)
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		// comments are allowed
		slack: { poll_interval_seconds: 30 },
		agent: { summarize_threshold: 8 },
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SIDEKICK_SLACK_TOKEN", "xoxp-test")
	t.Setenv("SIDEKICK_POLL_INTERVAL", "15")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.SummarizeThreshold != 8 {
		t.Errorf("SummarizeThreshold = %d, want 8 (from file)", cfg.Agent.SummarizeThreshold)
	}
	if cfg.Slack.PollIntervalSeconds != 15 {
		t.Errorf("PollIntervalSeconds = %d, want 15 (env wins over file)", cfg.Slack.PollIntervalSeconds)
	}
	if cfg.Slack.Token != "xoxp-test" {
		t.Errorf("Token = %q, want env value", cfg.Slack.Token)
	}
}

func TestSaveNeverPersistsSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Slack.Token = "xoxp-secret"
	cfg.Database.PostgresDSN = "postgres://u:pw@localhost/db"
	cfg.Providers.Anthropic.APIKey = "sk-ant-secret"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"xoxp-secret", "pw@localhost", "sk-ant-secret"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("config file contains secret %q", secret)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in   string
		want string
	}{
		{"~/.sidekick", home + "/.sidekick"},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
