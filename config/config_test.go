package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWITCH_CHANNELS", "TWITCH_CHANNEL", "TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN",
		"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "TWITCH_REDIRECT_URI", "TWITCH_SCOPES",
		"KICK_CLIENT_ID", "KICK_CLIENT_SECRET", "DB_DSN",
		"PLAYBACK_STORE", "DATA_DIR", "CONTROLLER_TIMEOUT", "CATALOG_SYNC_INTERVAL",
		"COMMAND_WINDOW_SKIP", "COMMAND_WINDOW_TOP_CLIPS",
		"ADMIN_USERNAME", "ADMIN_PASSWORD", "ADMIN_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.TwitchChannels) != 0 {
		t.Errorf("channels = %v, want none", cfg.TwitchChannels)
	}
	if cfg.PlaybackStore != "postgres" {
		t.Errorf("playback store = %q, want postgres", cfg.PlaybackStore)
	}
	if cfg.DataDir != "data" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.ControllerTimeout != 30*time.Second {
		t.Errorf("controller timeout = %v", cfg.ControllerTimeout)
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Errorf("sync interval = %v", cfg.SyncInterval)
	}
	if cfg.TwitchScopes != "chat:read chat:edit" {
		t.Errorf("scopes = %q", cfg.TwitchScopes)
	}
	if cfg.CommandWindows["skip"] != 5*time.Second || cfg.CommandWindows["top_clips"] != 30*time.Second {
		t.Errorf("command windows = %v", cfg.CommandWindows)
	}
}

func TestLoadChannelsListAndFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNELS", "Alpha, beta ,, GAMMA")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(cfg.TwitchChannels) != len(want) {
		t.Fatalf("channels = %v", cfg.TwitchChannels)
	}
	for i, ch := range want {
		if cfg.TwitchChannels[i] != ch {
			t.Errorf("channel %d = %q, want %q", i, cfg.TwitchChannels[i], ch)
		}
	}

	clearEnv(t)
	t.Setenv("TWITCH_CHANNEL", "Solo")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.TwitchChannels) != 1 || cfg.TwitchChannels[0] != "solo" {
		t.Errorf("singular fallback = %v", cfg.TwitchChannels)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLAYBACK_STORE", "file")
	t.Setenv("CONTROLLER_TIMEOUT", "45s")
	t.Setenv("CATALOG_SYNC_INTERVAL", "5m")
	t.Setenv("COMMAND_WINDOW_SKIP", "8s")
	t.Setenv("COMMAND_WINDOW_TOP_CLIPS", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PlaybackStore != "file" {
		t.Errorf("playback store = %q", cfg.PlaybackStore)
	}
	if cfg.ControllerTimeout != 45*time.Second {
		t.Errorf("controller timeout = %v", cfg.ControllerTimeout)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("sync interval = %v", cfg.SyncInterval)
	}
	if cfg.CommandWindows["skip"] != 8*time.Second {
		t.Errorf("skip window = %v", cfg.CommandWindows["skip"])
	}
	if cfg.CommandWindows["top_clips"] != 45*time.Second {
		t.Errorf("top_clips window = %v", cfg.CommandWindows["top_clips"])
	}
	// Untouched kinds keep their defaults.
	if cfg.CommandWindows["prev"] != 5*time.Second {
		t.Errorf("prev window = %v", cfg.CommandWindows["prev"])
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLAYBACK_STORE", "redis")
	if _, err := Load(); err == nil {
		t.Error("invalid PLAYBACK_STORE should fail")
	}

	clearEnv(t)
	t.Setenv("CONTROLLER_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Error("invalid CONTROLLER_TIMEOUT should fail")
	}

	clearEnv(t)
	t.Setenv("CONTROLLER_TIMEOUT", "-5s")
	if _, err := Load(); err == nil {
		t.Error("negative CONTROLLER_TIMEOUT should fail")
	}

	clearEnv(t)
	t.Setenv("COMMAND_WINDOW_SKIP", "fast")
	if _, err := Load(); err == nil {
		t.Error("invalid COMMAND_WINDOW_SKIP should fail")
	}
}

func TestValidateBotReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateBotReady(); err == nil {
		t.Error("empty config should not be bot ready")
	}
	cfg = &Config{
		TwitchChannels:    []string{"somechan"},
		TwitchBotUsername: "bot",
		TwitchOAuthToken:  "tok",
	}
	if err := cfg.ValidateBotReady(); err != nil {
		t.Errorf("complete config rejected: %v", err)
	}
}

func TestCommandWindowFallback(t *testing.T) {
	cfg := &Config{CommandWindows: map[string]time.Duration{"skip": 8 * time.Second}}
	if got := cfg.CommandWindow("skip"); got != 8*time.Second {
		t.Errorf("known kind = %v", got)
	}
	if got := cfg.CommandWindow("mystery"); got != 5*time.Second {
		t.Errorf("unknown kind fallback = %v", got)
	}
}
