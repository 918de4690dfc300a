package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/cliploop/catalog"
	"github.com/onnwee/cliploop/playback"
	"github.com/onnwee/cliploop/telemetry"
	"github.com/onnwee/cliploop/testutil"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"!skip", "skip", "", true},
		{"!SKIP", "skip", "", true},
		{"!play 42", "play", "42", true},
		{"!play #42", "play", "#42", true},
		{"  !category Dark Souls  ", "category", "Dark Souls", true},
		{"!category\tElden Ring", "category", "Elden Ring", true},
		{"hello there", "", "", false},
		{"!", "", "", false},
		{"", "", "", false},
		{"! skip", "", "", false},
	}
	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.in)
		if ok != tt.wantOK || name != tt.wantName || args != tt.wantArgs {
			t.Errorf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, name, args, ok, tt.wantName, tt.wantArgs, tt.wantOK)
		}
	}
}

func TestParseSeq(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{"#42", 42, true},
		{" 7 ", 7, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseSeq(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parseSeq(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	telemetry.Init()
	store, err := playback.NewStore(nil, "file", t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	coord := playback.NewCoordinator(store, map[string]time.Duration{
		playback.KindSkip:      5 * time.Second,
		playback.KindPrev:      5 * time.Second,
		playback.KindShuffle:   5 * time.Second,
		playback.KindTopClips:  5 * time.Second,
		playback.KindForcePlay: 10 * time.Second,
	}, 30*time.Second)
	return &Bot{Coord: coord}
}

func TestExecuteIssuesPlaybackCommands(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	tests := []struct {
		name string
		kind string
	}{
		{"skip", playback.KindSkip},
		{"previous", playback.KindPrev},
		{"prev", playback.KindPrev},
		{"shuffle", playback.KindShuffle},
		{"topclips", playback.KindTopClips},
	}
	for _, tt := range tests {
		reply := bot.Execute(ctx, "testchan", tt.name, "")
		if reply == "" || strings.Contains(reply, "wrong") {
			t.Errorf("command %s: unexpected reply %q", tt.name, reply)
		}
		cmd, err := bot.Coord.Poll(ctx, "testchan", tt.kind)
		if err != nil {
			t.Fatalf("poll %s: %v", tt.kind, err)
		}
		if cmd == nil {
			t.Errorf("command %s did not land in the %s mailbox", tt.name, tt.kind)
		}
	}
}

func TestExecuteUnknownCommandIsSilent(t *testing.T) {
	bot := newTestBot(t)
	if reply := bot.Execute(context.Background(), "testchan", "dance", ""); reply != "" {
		t.Errorf("unknown command should yield empty reply, got %q", reply)
	}
}

func TestExecutePlayUsage(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()
	for _, args := range []string{"", "abc", "0", "-1"} {
		reply := bot.Execute(ctx, "testchan", "play", args)
		if !strings.HasPrefix(reply, "Usage:") {
			t.Errorf("play %q: expected usage reply, got %q", args, reply)
		}
	}
	if reply := bot.Execute(ctx, "testchan", "remove", "x"); !strings.HasPrefix(reply, "Usage:") {
		t.Errorf("remove: expected usage reply, got %q", reply)
	}
	if reply := bot.Execute(ctx, "testchan", "restore", ""); !strings.HasPrefix(reply, "Usage:") {
		t.Errorf("restore: expected usage reply, got %q", reply)
	}
}

func TestIsPrivileged(t *testing.T) {
	tests := []struct {
		desc string
		msg  twitch.PrivateMessage
		want bool
	}{
		{"broadcaster by name", twitch.PrivateMessage{
			Channel: "somechan", User: twitch.User{Name: "somechan"}}, true},
		{"broadcaster badge", twitch.PrivateMessage{
			Channel: "somechan", User: twitch.User{Name: "other", Badges: map[string]int{"broadcaster": 1}}}, true},
		{"moderator badge", twitch.PrivateMessage{
			Channel: "somechan", User: twitch.User{Name: "amod", Badges: map[string]int{"moderator": 1}}}, true},
		{"subscriber only", twitch.PrivateMessage{
			Channel: "somechan", User: twitch.User{Name: "viewer", Badges: map[string]int{"subscriber": 12}}}, false},
		{"no badges", twitch.PrivateMessage{
			Channel: "somechan", User: twitch.User{Name: "viewer"}}, false},
	}
	for _, tt := range tests {
		if got := isPrivileged(tt.msg); got != tt.want {
			t.Errorf("%s: isPrivileged = %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestHandleMessageRepliesToPrivilegedOnly(t *testing.T) {
	bot := newTestBot(t)
	var said []string
	bot.say = func(channel, text string) { said = append(said, text) }
	ctx := context.Background()

	bot.handleMessage(ctx, twitch.PrivateMessage{
		Channel: "testchan",
		Message: "!skip",
		User:    twitch.User{Name: "viewer", DisplayName: "Viewer"},
	})
	if len(said) != 0 {
		t.Fatalf("unprivileged command should be ignored, got %v", said)
	}

	bot.handleMessage(ctx, twitch.PrivateMessage{
		Channel: "testchan",
		Message: "!skip",
		User:    twitch.User{Name: "testchan", DisplayName: "TestChan"},
	})
	if len(said) != 1 || !strings.HasPrefix(said[0], "@TestChan ") {
		t.Fatalf("expected one @-prefixed reply, got %v", said)
	}
}

func TestExecuteModerationAgainstDB(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	channel := "chat_mod_test"
	t.Cleanup(func() {
		database.ExecContext(ctx, `DELETE FROM clips WHERE channel=$1`, channel)
		database.ExecContext(ctx, `DELETE FROM blocklist WHERE channel=$1`, channel)
		database.ExecContext(ctx, `DELETE FROM category_filter WHERE channel=$1`, channel)
	})

	bot := newTestBot(t)
	bot.DB = database

	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := catalog.ImportBatch(ctx, database, channel, catalog.PlatformTwitch, []catalog.RawClip{
		{PlatformClipID: "m1", Title: "first clip", Duration: 20, CreatedAt: t0, ViewCount: 5},
		{PlatformClipID: "m2", Title: "second clip", Duration: 25, CreatedAt: t0.Add(time.Hour), ViewCount: 9},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// !play pushes a force_play command and names the clip.
	reply := bot.Execute(ctx, channel, "play", "2")
	if !strings.Contains(reply, "Playing clip 2") || !strings.Contains(reply, "second clip") {
		t.Fatalf("play reply %q", reply)
	}
	cmd, err := bot.Coord.Poll(ctx, channel, playback.KindForcePlay)
	if err != nil || cmd == nil {
		t.Fatalf("force_play not delivered: cmd=%v err=%v", cmd, err)
	}

	// !play with an out-of-range number echoes the valid range.
	reply = bot.Execute(ctx, channel, "play", "99")
	if !strings.Contains(reply, "1..2") {
		t.Fatalf("out-of-range reply %q", reply)
	}

	// !remove, repeat, !blocked, !restore.
	reply = bot.Execute(ctx, channel, "remove", "1")
	if !strings.Contains(reply, "Removed clip 1") {
		t.Fatalf("remove reply %q", reply)
	}
	reply = bot.Execute(ctx, channel, "remove", "#1")
	if !strings.Contains(reply, "already removed") {
		t.Fatalf("repeat remove reply %q", reply)
	}
	reply = bot.Execute(ctx, channel, "blocked", "")
	if !strings.Contains(reply, "#1") {
		t.Fatalf("blocked reply %q", reply)
	}
	reply = bot.Execute(ctx, channel, "restore", "1")
	if !strings.Contains(reply, "Restored clip 1") {
		t.Fatalf("restore reply %q", reply)
	}
	reply = bot.Execute(ctx, channel, "blocked", "")
	if reply != "No clips are removed." {
		t.Fatalf("empty blocklist reply %q", reply)
	}

	// !category with no active filter, then a miss, then clearing.
	reply = bot.Execute(ctx, channel, "category", "")
	if !strings.Contains(reply, "No category filter is active") {
		t.Fatalf("category status reply %q", reply)
	}
	reply = bot.Execute(ctx, channel, "category", "definitely no such game")
	if !strings.Contains(reply, "No category matching") {
		t.Fatalf("category miss reply %q", reply)
	}
	reply = bot.Execute(ctx, channel, "category", "off")
	if !strings.Contains(reply, "cleared") {
		t.Fatalf("category off reply %q", reply)
	}
}
