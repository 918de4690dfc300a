package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/cliploop/telemetry"
)

// SyncOnce runs one incremental import cycle for a channel across all sources,
// then resolves any newly referenced game metadata. Each source's batch is
// imported independently; one platform failing does not abort the others.
func SyncOnce(ctx context.Context, db *sql.DB, channel string, sources []Source, resolver GameResolver) error {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return err
	}

	var firstErr error
	for _, src := range sources {
		raw, err := src.FetchClips(ctx, ch)
		if err != nil {
			slog.Warn("clip fetch failed",
				slog.String("channel", ch), slog.String("platform", src.Platform()),
				slog.Any("err", err), slog.String("component", "catalog_sync"))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s fetch: %w", src.Platform(), err)
			}
			continue
		}
		res, err := ImportBatch(ctx, db, ch, src.Platform(), raw)
		if err != nil {
			slog.Warn("import batch failed",
				slog.String("channel", ch), slog.String("platform", src.Platform()),
				slog.Any("err", err), slog.String("component", "catalog_sync"))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s import: %w", src.Platform(), err)
			}
			continue
		}
		telemetry.ClipsImported.Add(float64(res.Inserted))
		telemetry.ClipsSkipped.Add(float64(res.SkippedExisting))
		if res.Inserted > 0 {
			slog.Info("clips imported",
				slog.String("channel", ch), slog.String("platform", src.Platform()),
				slog.Int("inserted", res.Inserted), slog.Int("skipped", res.SkippedExisting),
				slog.String("component", "catalog_sync"))
		}
	}

	if resolver != nil {
		if err := ResolveGames(ctx, db, resolver); err != nil {
			slog.Warn("game resolution failed", slog.Any("err", err), slog.String("component", "catalog_sync"))
		}
	}

	_, err = db.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		"last_sync:"+ch, time.Now().UTC().Format(time.RFC3339))
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// StartSyncJob periodically runs SyncOnce for a channel until ctx is canceled.
// An immediate first cycle runs on start so a fresh deployment has a catalog
// before the first tick.
func StartSyncJob(ctx context.Context, db *sql.DB, channel string, interval time.Duration, sources []Source, resolver GameResolver) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	slog.Info("catalog sync job starting",
		slog.String("channel", channel), slog.Duration("interval", interval),
		slog.Int("sources", len(sources)), slog.String("component", "catalog_sync"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	if err := SyncOnce(ctx, db, channel, sources, resolver); err != nil {
		slog.Warn("catalog sync", slog.String("channel", channel), slog.Any("err", err))
	}
	telemetry.SyncCycles.Inc()
	for {
		select {
		case <-ctx.Done():
			slog.Info("catalog sync job stopped", slog.String("channel", channel))
			return
		case <-ticker.C:
			if err := SyncOnce(ctx, db, channel, sources, resolver); err != nil {
				slog.Warn("catalog sync", slog.String("channel", channel), slog.Any("err", err))
			}
			telemetry.SyncCycles.Inc()
		}
	}
}
