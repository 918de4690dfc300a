package playback

import (
	"context"
	"log/slog"
	"time"
)

// StartSweepJob periodically prunes expired mailbox entries. Correctness never
// depends on it, since PollAndConsume and Issue already drop stale entries
// lazily; it only keeps abandoned slots from lingering in channels nobody polls.
func StartSweepJob(ctx context.Context, coord *Coordinator, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("mailbox sweep job starting", slog.Duration("interval", interval), slog.String("component", "playback"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("mailbox sweep job stopped", slog.String("component", "playback"))
			return
		case <-ticker.C:
			n, err := coord.Sweep(ctx)
			if err != nil {
				slog.Warn("mailbox sweep", slog.Any("err", err), slog.String("component", "playback"))
				continue
			}
			if n > 0 {
				slog.Debug("mailbox entries expired", slog.Int64("count", n), slog.String("component", "playback"))
			}
		}
	}
}
