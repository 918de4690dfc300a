// Package chat runs the moderator command bot. It joins each configured Twitch
// channel, listens for !-prefixed commands from privileged users (broadcaster
// or moderators), applies them through the catalog and playback layers, and
// answers with short human-readable replies.
package chat

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/cliploop/config"
	"github.com/onnwee/cliploop/playback"
)

// Bot is the IRC moderator bot. One instance serves all configured channels.
type Bot struct {
	DB    *sql.DB
	Coord *playback.Coordinator
	Cfg   *config.Config

	say func(channel, text string)
}

// StartBot connects the bot and blocks until ctx is canceled. Missing bot
// credentials log and return rather than erroring; chat moderation is optional.
func StartBot(ctx context.Context, db *sql.DB, coord *playback.Coordinator, cfg *config.Config) {
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Info("chat bot disabled", slog.Any("reason", err), slog.String("component", "chat"))
		return
	}
	token := cfg.TwitchOAuthToken
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	client := twitch.NewClient(cfg.TwitchBotUsername, token)
	bot := &Bot{DB: db, Coord: coord, Cfg: cfg, say: client.Say}

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		bot.handleMessage(ctx, msg)
	})
	client.Join(cfg.TwitchChannels...)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			slog.Debug("chat disconnect", slog.Any("err", err), slog.String("component", "chat"))
		}
		close(done)
	}()

	slog.Info("chat bot connecting",
		slog.String("username", cfg.TwitchBotUsername),
		slog.Any("channels", cfg.TwitchChannels),
		slog.String("component", "chat"))
	if err := client.Connect(); err != nil && ctx.Err() == nil {
		slog.Error("chat connect error", slog.Any("err", err), slog.String("component", "chat"))
	}
	<-done
}

// isPrivileged reports whether the sender may run moderation commands: the
// broadcaster or anyone carrying the moderator badge.
func isPrivileged(msg twitch.PrivateMessage) bool {
	if strings.EqualFold(msg.User.Name, msg.Channel) {
		return true
	}
	if v, ok := msg.User.Badges["broadcaster"]; ok && v > 0 {
		return true
	}
	if v, ok := msg.User.Badges["moderator"]; ok && v > 0 {
		return true
	}
	return false
}

func (b *Bot) handleMessage(ctx context.Context, msg twitch.PrivateMessage) {
	name, args, ok := ParseCommand(msg.Message)
	if !ok {
		return
	}
	if !isPrivileged(msg) {
		return
	}
	channel := strings.ToLower(msg.Channel)
	reply := b.Execute(ctx, channel, name, args)
	if reply == "" {
		return
	}
	slog.Info("chat command",
		slog.String("channel", channel),
		slog.String("user", msg.User.Name),
		slog.String("command", name),
		slog.String("component", "chat"))
	if b.say != nil {
		b.say(msg.Channel, "@"+msg.User.DisplayName+" "+reply)
	}
}
