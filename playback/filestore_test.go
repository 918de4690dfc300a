package playback

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func newTestFileStore(t *testing.T) *fileStore {
	t.Helper()
	s, err := newFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("newFileStore: %v", err)
	}
	return s
}

func TestFileStoreNowPlayingRoundTrip(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if _, err := s.GetNowPlaying(ctx, "somechannel"); err != ErrNoState {
		t.Fatalf("expected ErrNoState for fresh channel, got %v", err)
	}

	before := time.Now().UTC()
	stored, err := s.SetNowPlaying(ctx, NowPlaying{
		Channel:  "somechannel",
		ClipID:   "clip-abc",
		Seq:      42,
		Title:    "a title",
		Duration: 31.5,
	})
	if err != nil {
		t.Fatalf("SetNowPlaying: %v", err)
	}
	if stored.StartedAt.Before(before) {
		t.Errorf("started_at not stamped fresh: %v < %v", stored.StartedAt, before)
	}

	got, err := s.GetNowPlaying(ctx, "somechannel")
	if err != nil {
		t.Fatalf("GetNowPlaying: %v", err)
	}
	if got.ClipID != "clip-abc" || got.Seq != 42 || got.Duration != 31.5 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestFileStoreSetNowPlayingStampsStartedAt(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	first, err := s.SetNowPlaying(ctx, NowPlaying{Channel: "ch", ClipID: "a"})
	if err != nil {
		t.Fatalf("SetNowPlaying: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := s.SetNowPlaying(ctx, NowPlaying{Channel: "ch", ClipID: "b"})
	if err != nil {
		t.Fatalf("SetNowPlaying: %v", err)
	}
	if !second.StartedAt.After(first.StartedAt) {
		t.Errorf("started_at should advance on every write: %v then %v", first.StartedAt, second.StartedAt)
	}
	got, _ := s.GetNowPlaying(ctx, "ch")
	if got.ClipID != "b" {
		t.Errorf("last write should win, got clip %s", got.ClipID)
	}
}

func TestFileStoreMailboxAtMostOnce(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	nonce, err := s.Issue(ctx, "ch", KindSkip, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if nonce == "" {
		t.Fatal("empty nonce")
	}

	const pollers = 16
	var wg sync.WaitGroup
	results := make(chan *Command, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd, err := s.PollAndConsume(ctx, "ch", KindSkip, 5*time.Second)
			if err != nil {
				t.Errorf("PollAndConsume: %v", err)
				return
			}
			if cmd != nil {
				results <- cmd
			}
		}()
	}
	wg.Wait()
	close(results)

	var consumed []*Command
	for cmd := range results {
		consumed = append(consumed, cmd)
	}
	if len(consumed) != 1 {
		t.Fatalf("expected exactly one poller to consume, got %d", len(consumed))
	}
	if consumed[0].Nonce != nonce {
		t.Errorf("consumed nonce %s, want %s", consumed[0].Nonce, nonce)
	}
}

func TestFileStoreIssueReplacesPriorEntry(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, "ch", KindForcePlay, []byte(`{"seq":1}`)); err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	nonce2, err := s.Issue(ctx, "ch", KindForcePlay, []byte(`{"seq":2}`))
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}

	cmd, err := s.PollAndConsume(ctx, "ch", KindForcePlay, 5*time.Second)
	if err != nil {
		t.Fatalf("PollAndConsume: %v", err)
	}
	if cmd == nil || cmd.Nonce != nonce2 {
		t.Fatalf("expected replacement entry, got %+v", cmd)
	}
	var payload ForcePlayPayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Seq != 2 {
		t.Errorf("payload seq = %d, want 2", payload.Seq)
	}

	// Slot now empty.
	again, err := s.PollAndConsume(ctx, "ch", KindForcePlay, 5*time.Second)
	if err != nil || again != nil {
		t.Errorf("second poll should be empty, got %+v err %v", again, err)
	}
}

func TestFileStoreExpiredEntryNeverDelivered(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, "ch", KindSkip, nil); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	cmd, err := s.PollAndConsume(ctx, "ch", KindSkip, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("PollAndConsume: %v", err)
	}
	if cmd != nil {
		t.Fatal("expired entry must not be delivered")
	}
	// The expired entry must also be gone, not just hidden.
	again, err := s.PollAndConsume(ctx, "ch", KindSkip, time.Hour)
	if err != nil || again != nil {
		t.Errorf("expired entry should have been removed, got %+v err %v", again, err)
	}
}

func TestFileStoreHeartbeatTakeover(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if _, err := s.SetNowPlaying(ctx, NowPlaying{Channel: "ch", ClipID: "x", ControllerID: "alpha"}); err != nil {
		t.Fatalf("SetNowPlaying: %v", err)
	}
	ok, err := s.Heartbeat(ctx, "ch", "alpha", time.Minute)
	if err != nil || !ok {
		t.Fatalf("owner heartbeat should succeed: ok=%v err=%v", ok, err)
	}
	// Another controller with a fresh owner heartbeat must be refused.
	ok, err = s.Heartbeat(ctx, "ch", "beta", time.Minute)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if ok {
		t.Error("contested heartbeat should be refused while owner is fresh")
	}
	// With a tiny timeout the owner is stale and beta may take over.
	time.Sleep(10 * time.Millisecond)
	ok, err = s.Heartbeat(ctx, "ch", "beta", time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("takeover after staleness should succeed: ok=%v err=%v", ok, err)
	}
	got, _ := s.GetNowPlaying(ctx, "ch")
	if got.ControllerID != "beta" {
		t.Errorf("controller should be beta after takeover, got %s", got.ControllerID)
	}
}

func TestFileStoreSweepExpired(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, "ch", KindSkip, nil); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Issue(ctx, "ch", KindShuffle, nil); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	n, err := s.SweepExpired(ctx, map[string]time.Duration{
		KindSkip:    time.Millisecond, // expired
		KindShuffle: time.Hour,        // still fresh
	})
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 swept entry, got %d", n)
	}
	cmd, _ := s.PollAndConsume(ctx, "ch", KindShuffle, time.Hour)
	if cmd == nil {
		t.Error("fresh entry should have survived the sweep")
	}
}
