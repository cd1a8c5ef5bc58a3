package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SKALD_STREAM_KEY", "live_abc123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.SkipThreshold != 3 {
		t.Fatalf("expected default threshold 3, got %d", cfg.SkipThreshold)
	}
	if cfg.MaxSessionAge != 47*time.Hour {
		t.Fatalf("expected default session age 47h, got %s", cfg.MaxSessionAge)
	}
	if got := cfg.SinkURL(); got != "rtmp://live.twitch.tv/app/live_abc123" {
		t.Fatalf("unexpected sink url: %s", got)
	}
	if cfg.ChatEnabled() {
		t.Fatalf("chat should be disabled without a nick")
	}
}

func TestLoad_MissingStreamKey(t *testing.T) {
	t.Setenv("SKALD_STREAM_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing stream key")
	}
}

func TestLoad_ChatRequiresTokenAndChannel(t *testing.T) {
	t.Setenv("SKALD_STREAM_KEY", "k")
	t.Setenv("SKALD_CHAT_NICK", "skaldbot")
	t.Setenv("SKALD_CHAT_TOKEN", "")
	t.Setenv("SKALD_CHAT_CHANNEL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for chat nick without token/channel")
	}
}

func TestLoad_InstantSkipUsers(t *testing.T) {
	t.Setenv("SKALD_STREAM_KEY", "k")
	t.Setenv("SKALD_INSTANT_SKIP_USERS", "alice, bob ,,carol")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []string{"alice", "bob", "carol"}
	if len(cfg.InstantSkipUsers) != len(want) {
		t.Fatalf("expected %d users, got %v", len(want), cfg.InstantSkipUsers)
	}
	for i, u := range want {
		if cfg.InstantSkipUsers[i] != u {
			t.Fatalf("user %d: got %q want %q", i, cfg.InstantSkipUsers[i], u)
		}
	}
}
