package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ImportResult summarizes one intake batch.
type ImportResult struct {
	Inserted        int      `json:"inserted"`
	SkippedExisting int      `json:"skipped_existing"`
	Errors          []string `json:"errors,omitempty"`
}

// orderBatch stable-sorts a batch ascending by upstream creation time, so that
// within one import run older clips receive lower numbers. The original fetch
// order breaks ties. Ordering against already-stored clips is intentionally
// not reconciled; only intra-batch order is guaranteed.
func orderBatch(batch []RawClip) []RawClip {
	out := make([]RawClip, len(batch))
	copy(out, batch)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// lockChannelSeq serializes sequence allocation per channel for the duration of
// the transaction. Without it, two concurrent imports could both read the same
// max(seq) and collide on the unique (channel, seq) index.
func lockChannelSeq(ctx context.Context, tx *sql.Tx, channel string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('clipseq:' || $1))`, channel)
	if err != nil {
		return fmt.Errorf("channel seq lock: %w", err)
	}
	return nil
}

// ImportBatch dedups raw upstream clips against the existing catalog and assigns
// permanent sequence numbers max(seq)+1.. to the genuinely new ones, ascending by
// intra-batch created_at. The whole batch lands in one transaction: either every
// new clip gets its number and row, or none do. Safe to call repeatedly with
// overlapping data; re-imports of already-seen clips count as skipped, not errors.
func ImportBatch(ctx context.Context, db *sql.DB, channel, platform string, raw []RawClip) (ImportResult, error) {
	var res ImportResult
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return res, err
	}
	if !validPlatform(platform) {
		return res, &ValidationError{Msg: fmt.Sprintf("invalid platform %q (want twitch or kick)", platform)}
	}
	if len(raw) == 0 {
		return res, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockChannelSeq(ctx, tx, ch); err != nil {
		return res, err
	}

	existing := make(map[string]struct{})
	rows, err := tx.QueryContext(ctx, `SELECT platform_clip_id FROM clips WHERE channel=$1 AND platform=$2`, ch, platform)
	if err != nil {
		return res, fmt.Errorf("load existing clip ids: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return res, fmt.Errorf("scan clip id: %w", err)
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}

	fresh := make([]RawClip, 0, len(raw))
	for _, r := range raw {
		if r.PlatformClipID == "" {
			res.Errors = append(res.Errors, "clip with empty id skipped")
			continue
		}
		if _, seen := existing[r.PlatformClipID]; seen {
			res.SkippedExisting++
			continue
		}
		// Also dedup within the batch itself; upstream pages can overlap.
		existing[r.PlatformClipID] = struct{}{}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		if err := tx.Commit(); err != nil {
			return res, fmt.Errorf("commit import tx: %w", err)
		}
		return res, nil
	}

	var maxSeq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM clips WHERE channel=$1`, ch).Scan(&maxSeq); err != nil {
		return res, fmt.Errorf("read max seq: %w", err)
	}

	gameIDs := make(map[string]struct{})
	seq := maxSeq
	for _, r := range orderBatch(fresh) {
		seq++
		_, err := tx.ExecContext(ctx, `INSERT INTO clips
			(channel, platform, platform_clip_id, seq, title, duration_seconds, created_at, view_count, game_id, creator_name, thumbnail_url, blocked, imported_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$11,FALSE,NOW())`,
			ch, platform, r.PlatformClipID, seq, r.Title, r.Duration, r.CreatedAt, r.ViewCount, r.GameID, r.CreatorName, r.ThumbnailURL)
		if err != nil {
			// One failed insert aborts the whole batch so no partial gaps get reused.
			return res, fmt.Errorf("insert clip %s (seq %d): %w", r.PlatformClipID, seq, err)
		}
		if r.GameID != "" {
			gameIDs[r.GameID] = struct{}{}
		}
		res.Inserted++
	}

	if err := ensureGamesTx(ctx, tx, gameIDs); err != nil {
		return res, err
	}

	if err := tx.Commit(); err != nil {
		res.Inserted = 0
		return res, fmt.Errorf("commit import tx: %w", err)
	}
	slog.Debug("import batch committed",
		slog.String("channel", ch), slog.String("platform", platform),
		slog.Int("inserted", res.Inserted), slog.Int("skipped", res.SkippedExisting),
		slog.String("component", "catalog"))
	return res, nil
}

// Bootstrap performs the one-time initial numbering of a pre-existing unordered
// collection: clips are sorted globally by created_at ascending and assigned
// 1..N. This is the only operation that orders across the whole catalog, and it
// refuses to run unless the channel has no clips at all; re-running would
// renumber everything and break every external reference.
func Bootstrap(ctx context.Context, db *sql.DB, channel, platform string, raw []RawClip) (ImportResult, error) {
	var res ImportResult
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return res, err
	}
	if !validPlatform(platform) {
		return res, &ValidationError{Msg: fmt.Sprintf("invalid platform %q (want twitch or kick)", platform)}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin bootstrap tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockChannelSeq(ctx, tx, ch); err != nil {
		return res, err
	}

	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips WHERE channel=$1`, ch).Scan(&count); err != nil {
		return res, fmt.Errorf("bootstrap precondition check: %w", err)
	}
	if count > 0 {
		return res, fmt.Errorf("channel %s has %d clips: %w", ch, count, ErrAlreadyBootstrapped)
	}

	seen := make(map[string]struct{}, len(raw))
	fresh := make([]RawClip, 0, len(raw))
	for _, r := range raw {
		if r.PlatformClipID == "" {
			res.Errors = append(res.Errors, "clip with empty id skipped")
			continue
		}
		if _, dup := seen[r.PlatformClipID]; dup {
			res.SkippedExisting++
			continue
		}
		seen[r.PlatformClipID] = struct{}{}
		fresh = append(fresh, r)
	}

	gameIDs := make(map[string]struct{})
	var seq int64
	for _, r := range orderBatch(fresh) {
		seq++
		_, err := tx.ExecContext(ctx, `INSERT INTO clips
			(channel, platform, platform_clip_id, seq, title, duration_seconds, created_at, view_count, game_id, creator_name, thumbnail_url, blocked, imported_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$11,FALSE,NOW())`,
			ch, platform, r.PlatformClipID, seq, r.Title, r.Duration, r.CreatedAt, r.ViewCount, r.GameID, r.CreatorName, r.ThumbnailURL)
		if err != nil {
			return res, fmt.Errorf("bootstrap insert clip %s (seq %d): %w", r.PlatformClipID, seq, err)
		}
		if r.GameID != "" {
			gameIDs[r.GameID] = struct{}{}
		}
		res.Inserted++
	}

	if err := ensureGamesTx(ctx, tx, gameIDs); err != nil {
		return res, err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		"bootstrap:"+ch, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return res, fmt.Errorf("record bootstrap mark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		res.Inserted = 0
		return res, fmt.Errorf("commit bootstrap tx: %w", err)
	}
	slog.Info("catalog bootstrapped",
		slog.String("channel", ch), slog.Int("clips", res.Inserted),
		slog.String("component", "catalog"))
	return res, nil
}

func ensureGamesTx(ctx context.Context, tx *sql.Tx, ids map[string]struct{}) error {
	for id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO games (game_id) VALUES ($1) ON CONFLICT (game_id) DO NOTHING`, id); err != nil {
			return fmt.Errorf("ensure game %s: %w", id, err)
		}
	}
	return nil
}
