package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/onnwee/cliploop/catalog"
	"github.com/onnwee/cliploop/playback"
)

// ParseCommand splits a chat line into a command name and its argument rest.
// Lines not starting with '!' are not commands. The name is lowercased; the
// argument keeps its original casing (category queries may be mixed case).
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") || len(text) < 2 {
		return "", "", false
	}
	rest := text[1:]
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		name, args = rest[:i], strings.TrimSpace(rest[i+1:])
	} else {
		name = rest
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", "", false
	}
	return name, args, true
}

// Execute runs one parsed command and returns the reply text, or "" for
// unknown commands (the bot stays silent rather than spamming chat).
func (b *Bot) Execute(ctx context.Context, channel, name, args string) string {
	switch name {
	case "skip":
		return b.issue(ctx, channel, playback.KindSkip, nil, "Skipping to the next clip.")
	case "previous", "prev":
		return b.issue(ctx, channel, playback.KindPrev, nil, "Going back one clip.")
	case "shuffle":
		return b.issue(ctx, channel, playback.KindShuffle, nil, "Reshuffling the playlist.")
	case "topclips":
		return b.issue(ctx, channel, playback.KindTopClips, nil, "Switching to the most-viewed clips.")
	case "play":
		return b.forcePlay(ctx, channel, args)
	case "remove":
		return b.remove(ctx, channel, args)
	case "restore":
		return b.restore(ctx, channel, args)
	case "category":
		return b.category(ctx, channel, args)
	case "blocked":
		return b.blockedSummary(ctx, channel)
	}
	return ""
}

func (b *Bot) issue(ctx context.Context, channel, kind string, payload []byte, okReply string) string {
	if _, err := b.Coord.Issue(ctx, channel, kind, payload); err != nil {
		slog.Warn("command issue failed",
			slog.String("channel", channel), slog.String("kind", kind),
			slog.Any("err", err), slog.String("component", "chat"))
		return "Something went wrong, try again."
	}
	return okReply
}

func parseSeq(args string) (int64, bool) {
	args = strings.TrimPrefix(strings.TrimSpace(args), "#")
	seq, err := strconv.ParseInt(args, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

func (b *Bot) forcePlay(ctx context.Context, channel, args string) string {
	seq, ok := parseSeq(args)
	if !ok {
		return "Usage: !play <clip number>"
	}
	clip, err := catalog.GetClipBySeq(ctx, b.DB, channel, seq)
	if err != nil {
		if catalog.IsNotFound(err) {
			return err.Error()
		}
		slog.Warn("force play lookup failed", slog.String("channel", channel),
			slog.Int64("seq", seq), slog.Any("err", err), slog.String("component", "chat"))
		return "Something went wrong, try again."
	}
	payload, err := json.Marshal(playback.ForcePlayPayload{
		ClipID:   clip.PlatformClipID,
		Seq:      clip.Seq,
		Title:    clip.Title,
		Duration: clip.Duration,
	})
	if err != nil {
		return "Something went wrong, try again."
	}
	return b.issue(ctx, channel, playback.KindForcePlay, payload,
		fmt.Sprintf("Playing clip %d: %s", clip.Seq, clip.Title))
}

func (b *Bot) remove(ctx context.Context, channel, args string) string {
	seq, ok := parseSeq(args)
	if !ok {
		return "Usage: !remove <clip number>"
	}
	res, err := catalog.Block(ctx, b.DB, channel, seq)
	if err != nil {
		if catalog.IsNotFound(err) || catalog.IsValidation(err) {
			return err.Error()
		}
		slog.Warn("block failed", slog.String("channel", channel),
			slog.Int64("seq", seq), slog.Any("err", err), slog.String("component", "chat"))
		return "Something went wrong, try again."
	}
	if res.AlreadyApplied {
		return fmt.Sprintf("Clip %d is already removed.", res.Seq)
	}
	return fmt.Sprintf("Removed clip %d: %s (%d blocked total)", res.Seq, res.Title, res.BlockedCount)
}

func (b *Bot) restore(ctx context.Context, channel, args string) string {
	seq, ok := parseSeq(args)
	if !ok {
		return "Usage: !restore <clip number>"
	}
	res, err := catalog.Unblock(ctx, b.DB, channel, seq)
	if err != nil {
		if catalog.IsNotFound(err) || catalog.IsValidation(err) {
			return err.Error()
		}
		slog.Warn("unblock failed", slog.String("channel", channel),
			slog.Int64("seq", seq), slog.Any("err", err), slog.String("component", "chat"))
		return "Something went wrong, try again."
	}
	if res.AlreadyApplied {
		return fmt.Sprintf("Clip %d is not removed.", res.Seq)
	}
	return fmt.Sprintf("Restored clip %d: %s (%d blocked total)", res.Seq, res.Title, res.BlockedCount)
}

func (b *Bot) category(ctx context.Context, channel, args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		state, err := catalog.GetFilter(ctx, b.DB, channel)
		if err != nil {
			return "Something went wrong, try again."
		}
		if !state.Active {
			return "No category filter is active. Usage: !category <game> or !category off"
		}
		return "Current filter: " + state.DisplayName
	}
	if strings.EqualFold(args, "off") || strings.EqualFold(args, "clear") {
		if err := catalog.ClearFilter(ctx, b.DB, channel); err != nil {
			return "Something went wrong, try again."
		}
		return "Category filter cleared, playing everything."
	}
	res, err := catalog.SetFilter(ctx, b.DB, channel, args)
	if err != nil {
		if catalog.IsValidation(err) {
			return err.Error()
		}
		slog.Warn("set filter failed", slog.String("channel", channel),
			slog.Any("err", err), slog.String("component", "chat"))
		return "Something went wrong, try again."
	}
	if !res.Matched {
		names := make([]string, 0, len(res.AvailableGames))
		for _, g := range res.AvailableGames {
			if g.Name != "" {
				names = append(names, g.Name)
			}
		}
		if len(names) > 5 {
			names = names[:5]
		}
		if len(names) == 0 {
			return fmt.Sprintf("No category matching %q.", args)
		}
		return fmt.Sprintf("No category matching %q. Try: %s", args, strings.Join(names, ", "))
	}
	return fmt.Sprintf("Filtering to %s (%d clips).", res.DisplayName, res.ClipCount)
}

func (b *Bot) blockedSummary(ctx context.Context, channel string) string {
	blocked, err := catalog.ListBlocked(ctx, b.DB, channel)
	if err != nil {
		return "Something went wrong, try again."
	}
	if len(blocked) == 0 {
		return "No clips are removed."
	}
	parts := make([]string, 0, 5)
	for i, bc := range blocked {
		if i == 5 {
			break
		}
		parts = append(parts, fmt.Sprintf("#%d", bc.Seq))
	}
	suffix := ""
	if len(blocked) > 5 {
		suffix = fmt.Sprintf(" and %d more", len(blocked)-5)
	}
	return fmt.Sprintf("%d removed clip(s): %s%s", len(blocked), strings.Join(parts, ", "), suffix)
}
