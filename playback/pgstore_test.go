package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/cliploop/testutil"
)

func newTestPGStore(t *testing.T) *pgStore {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM now_playing`)
		_, _ = db.Exec(`DELETE FROM command_mailbox`)
	})
	return &pgStore{db: db}
}

func TestPGStoreNowPlayingLastWriterWins(t *testing.T) {
	s := newTestPGStore(t)
	ctx := context.Background()

	first, err := s.SetNowPlaying(ctx, NowPlaying{Channel: "pgch", ClipID: "a", Seq: 1, Duration: 30})
	if err != nil {
		t.Fatalf("SetNowPlaying: %v", err)
	}
	second, err := s.SetNowPlaying(ctx, NowPlaying{Channel: "pgch", ClipID: "b", Seq: 2, Duration: 40})
	if err != nil {
		t.Fatalf("SetNowPlaying: %v", err)
	}
	if second.StartedAt.Before(first.StartedAt) {
		t.Errorf("started_at went backwards: %v then %v", first.StartedAt, second.StartedAt)
	}
	got, err := s.GetNowPlaying(ctx, "pgch")
	if err != nil {
		t.Fatalf("GetNowPlaying: %v", err)
	}
	if got.ClipID != "b" || got.Seq != 2 {
		t.Errorf("last write should win, got %+v", got)
	}
}

func TestPGStoreMailboxAtMostOnce(t *testing.T) {
	s := newTestPGStore(t)
	ctx := context.Background()

	nonce, err := s.Issue(ctx, "pgch", KindSkip, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const pollers = 8
	var wg sync.WaitGroup
	results := make(chan *Command, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd, err := s.PollAndConsume(ctx, "pgch", KindSkip, 5*time.Second)
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

	count := 0
	for cmd := range results {
		count++
		if cmd.Nonce != nonce {
			t.Errorf("consumed nonce %s, want %s", cmd.Nonce, nonce)
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one consumer, got %d", count)
	}
}

func TestPGStoreExpiredEntryDeletedNotDelivered(t *testing.T) {
	s := newTestPGStore(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, "pgch", KindShuffle, nil); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)

	cmd, err := s.PollAndConsume(ctx, "pgch", KindShuffle, time.Second)
	if err != nil {
		t.Fatalf("PollAndConsume: %v", err)
	}
	if cmd != nil {
		t.Fatal("expired entry must not be delivered")
	}
	again, err := s.PollAndConsume(ctx, "pgch", KindShuffle, time.Hour)
	if err != nil || again != nil {
		t.Errorf("expired entry should have been deleted, got %+v err %v", again, err)
	}
}

func TestPGStoreHeartbeatClaimAndContest(t *testing.T) {
	s := newTestPGStore(t)
	ctx := context.Background()

	if _, err := s.SetNowPlaying(ctx, NowPlaying{Channel: "pgch", ClipID: "x", ControllerID: "alpha"}); err != nil {
		t.Fatalf("SetNowPlaying: %v", err)
	}
	ok, err := s.Heartbeat(ctx, "pgch", "alpha", time.Minute)
	if err != nil || !ok {
		t.Fatalf("owner heartbeat: ok=%v err=%v", ok, err)
	}
	ok, err = s.Heartbeat(ctx, "pgch", "beta", time.Minute)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if ok {
		t.Error("contested heartbeat should be refused while the owner is fresh")
	}
	// Zero-ish timeout makes the owner instantly stale.
	time.Sleep(1100 * time.Millisecond)
	ok, err = s.Heartbeat(ctx, "pgch", "beta", time.Second)
	if err != nil || !ok {
		t.Fatalf("takeover after staleness: ok=%v err=%v", ok, err)
	}
}
