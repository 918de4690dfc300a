package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BlockResult reports the outcome of a block/unblock by sequence number.
// Re-blocking an already-blocked clip (or unblocking a non-blocked one) is an
// idempotent success, not an error: the bot can't tell a first command from a retry.
type BlockResult struct {
	PlatformClipID string `json:"clip_id"`
	Seq            int64  `json:"seq"`
	Title          string `json:"title"`
	AlreadyApplied bool   `json:"already_applied"`
	BlockedCount   int64  `json:"blocked_count"`
}

// BlockedClip is one moderation overlay row, with seq and title snapshotted at
// removal time for display.
type BlockedClip struct {
	PlatformClipID string    `json:"clip_id"`
	Seq            int64     `json:"seq"`
	Title          string    `json:"title"`
	RemovedAt      time.Time `json:"removed_at"`
}

// Block logically removes a clip from the catalog by sequence number. The
// blocked flag and the overlay row change in one transaction so they can never
// disagree; the clip row itself is never deleted.
func Block(ctx context.Context, db *sql.DB, channel string, seq int64) (*BlockResult, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	if seq <= 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("clip number must be positive, got %d", seq)}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin block tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var clipID, title string
	var blocked bool
	err = tx.QueryRowContext(ctx,
		`SELECT platform_clip_id, COALESCE(title,''), COALESCE(blocked,FALSE) FROM clips WHERE channel=$1 AND seq=$2 FOR UPDATE`,
		ch, seq).Scan(&clipID, &title, &blocked)
	if err == sql.ErrNoRows {
		var maxSeq int64
		if mErr := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM clips WHERE channel=$1`, ch).Scan(&maxSeq); mErr != nil {
			return nil, fmt.Errorf("read max seq: %w", mErr)
		}
		return nil, &SeqNotFoundError{Channel: ch, Seq: seq, MaxSeq: maxSeq}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup clip for block: %w", err)
	}

	res := &BlockResult{PlatformClipID: clipID, Seq: seq, Title: title, AlreadyApplied: blocked}
	if !blocked {
		if _, err := tx.ExecContext(ctx, `UPDATE clips SET blocked=TRUE WHERE channel=$1 AND seq=$2`, ch, seq); err != nil {
			return nil, fmt.Errorf("set blocked flag: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO blocklist (channel, platform_clip_id, seq, title, removed_at)
			VALUES ($1,$2,$3,$4,NOW()) ON CONFLICT (channel, platform_clip_id) DO NOTHING`,
			ch, clipID, seq, title)
		if err != nil {
			return nil, fmt.Errorf("insert blocklist row: %w", err)
		}
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips WHERE channel=$1 AND blocked=TRUE`, ch).Scan(&res.BlockedCount); err != nil {
		return nil, fmt.Errorf("count blocked: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit block tx: %w", err)
	}
	return res, nil
}

// Unblock restores a previously removed clip. "No such seq" is reported with
// the valid range; "found but not blocked" is an idempotent success.
func Unblock(ctx context.Context, db *sql.DB, channel string, seq int64) (*BlockResult, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	if seq <= 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("clip number must be positive, got %d", seq)}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unblock tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var clipID, title string
	var blocked bool
	err = tx.QueryRowContext(ctx,
		`SELECT platform_clip_id, COALESCE(title,''), COALESCE(blocked,FALSE) FROM clips WHERE channel=$1 AND seq=$2 FOR UPDATE`,
		ch, seq).Scan(&clipID, &title, &blocked)
	if err == sql.ErrNoRows {
		var maxSeq int64
		if mErr := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM clips WHERE channel=$1`, ch).Scan(&maxSeq); mErr != nil {
			return nil, fmt.Errorf("read max seq: %w", mErr)
		}
		return nil, &SeqNotFoundError{Channel: ch, Seq: seq, MaxSeq: maxSeq}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup clip for unblock: %w", err)
	}

	res := &BlockResult{PlatformClipID: clipID, Seq: seq, Title: title, AlreadyApplied: !blocked}
	if blocked {
		if _, err := tx.ExecContext(ctx, `UPDATE clips SET blocked=FALSE WHERE channel=$1 AND seq=$2`, ch, seq); err != nil {
			return nil, fmt.Errorf("clear blocked flag: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM blocklist WHERE channel=$1 AND platform_clip_id=$2`, ch, clipID); err != nil {
			return nil, fmt.Errorf("delete blocklist row: %w", err)
		}
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips WHERE channel=$1 AND blocked=TRUE`, ch).Scan(&res.BlockedCount); err != nil {
		return nil, fmt.Errorf("count blocked: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unblock tx: %w", err)
	}
	return res, nil
}

// ListBlocked returns the channel's moderation overlay, ordered by seq.
func ListBlocked(ctx context.Context, db *sql.DB, channel string) ([]BlockedClip, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT platform_clip_id, seq, COALESCE(title,''), removed_at FROM blocklist WHERE channel=$1 ORDER BY seq`, ch)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	defer rows.Close()

	out := make([]BlockedClip, 0)
	for rows.Next() {
		var b BlockedClip
		if err := rows.Scan(&b.PlatformClipID, &b.Seq, &b.Title, &b.RemovedAt); err != nil {
			return nil, fmt.Errorf("scan blocked clip: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
