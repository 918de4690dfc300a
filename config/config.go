// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., the Twitch chat bot), use ValidateBotReady.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// Twitch
	TwitchChannels     []string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	TwitchScopes       string

	// Kick
	KickClientID     string
	KickClientSecret string

	// Database
	DBDsn string

	// Playback coordination
	PlaybackStore     string // "postgres" (default) or "file"
	DataDir           string
	ControllerTimeout time.Duration
	CommandWindows    map[string]time.Duration

	// Catalog sync
	SyncInterval time.Duration

	// Admin auth, injected into the HTTP layer rather than read ad hoc.
	AdminUsername string
	AdminPassword string
	AdminToken    string
}

// Default freshness windows per mailbox command kind. Short-lived commands
// (skip/prev) assume a 1-3s poller cadence; browse-style commands get more slack.
var defaultCommandWindows = map[string]time.Duration{
	"skip":       5 * time.Second,
	"prev":       5 * time.Second,
	"force_play": 10 * time.Second,
	"shuffle":    30 * time.Second,
	"top_clips":  30 * time.Second,
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are
// missing; use ValidateBotReady() when you require the chat bot. Missing optional variables
// disable features (e.g., Kick import).
func Load() (*Config, error) {
	cfg := &Config{}

	if v := os.Getenv("TWITCH_CHANNELS"); v != "" {
		for _, ch := range strings.Split(v, ",") {
			ch = strings.TrimSpace(strings.ToLower(ch))
			if ch != "" {
				cfg.TwitchChannels = append(cfg.TwitchChannels, ch)
			}
		}
	} else if v := os.Getenv("TWITCH_CHANNEL"); v != "" {
		cfg.TwitchChannels = []string{strings.ToLower(strings.TrimSpace(v))}
	}
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		// default scopes for chat bot
		cfg.TwitchScopes = "chat:read chat:edit"
	}

	cfg.KickClientID = os.Getenv("KICK_CLIENT_ID")
	cfg.KickClientSecret = os.Getenv("KICK_CLIENT_SECRET")

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.PlaybackStore = strings.ToLower(os.Getenv("PLAYBACK_STORE"))
	if cfg.PlaybackStore == "" {
		cfg.PlaybackStore = "postgres"
	}
	if cfg.PlaybackStore != "postgres" && cfg.PlaybackStore != "file" {
		return nil, fmt.Errorf("invalid PLAYBACK_STORE %q (want postgres or file)", cfg.PlaybackStore)
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.ControllerTimeout = 30 * time.Second
	if v := os.Getenv("CONTROLLER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CONTROLLER_TIMEOUT (duration): %q", v)
		}
		cfg.ControllerTimeout = d
	}

	cfg.CommandWindows = make(map[string]time.Duration, len(defaultCommandWindows))
	for kind, window := range defaultCommandWindows {
		cfg.CommandWindows[kind] = window
		// e.g. COMMAND_WINDOW_SKIP=8s, COMMAND_WINDOW_TOP_CLIPS=45s
		env := "COMMAND_WINDOW_" + strings.ToUpper(kind)
		if v := os.Getenv(env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("invalid %s (duration): %q", env, v)
			}
			cfg.CommandWindows[kind] = d
		}
	}

	cfg.SyncInterval = 15 * time.Minute
	if v := os.Getenv("CATALOG_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CATALOG_SYNC_INTERVAL (duration): %q", v)
		}
		cfg.SyncInterval = d
	}

	cfg.AdminUsername = os.Getenv("ADMIN_USERNAME")
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg, nil
}

// ValidateBotReady checks required fields when the moderator chat bot is enabled.
func (c *Config) ValidateBotReady() error {
	if len(c.TwitchChannels) == 0 || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNELS, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// CommandWindow returns the freshness window for a mailbox command kind,
// falling back to the shortest default when the kind is unknown.
func (c *Config) CommandWindow(kind string) time.Duration {
	if w, ok := c.CommandWindows[kind]; ok {
		return w
	}
	return 5 * time.Second
}
