package playback

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// pgStore keeps all coordination rows in Postgres. Every operation is a single
// statement (or upsert-with-conflict-resolution), so concurrent clients race on
// the store's per-row atomicity rather than on read-then-write sequences.
type pgStore struct {
	db *sql.DB
}

func (s *pgStore) SetNowPlaying(ctx context.Context, np NowPlaying) (NowPlaying, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO now_playing (channel, clip_id, seq, title, duration_seconds, playlist_index, playlist_ids, controller_id, started_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
		ON CONFLICT (channel) DO UPDATE SET
			clip_id=EXCLUDED.clip_id, seq=EXCLUDED.seq, title=EXCLUDED.title,
			duration_seconds=EXCLUDED.duration_seconds, playlist_index=EXCLUDED.playlist_index,
			playlist_ids=EXCLUDED.playlist_ids, controller_id=EXCLUDED.controller_id,
			started_at=NOW(), updated_at=NOW()
		RETURNING started_at, updated_at`,
		np.Channel, np.ClipID, np.Seq, np.Title, np.Duration,
		np.PlaylistIndex, strings.Join(np.PlaylistIDs, ","), np.ControllerID)
	if err := row.Scan(&np.StartedAt, &np.UpdatedAt); err != nil {
		return np, fmt.Errorf("set now playing: %w", err)
	}
	return np, nil
}

func (s *pgStore) GetNowPlaying(ctx context.Context, channel string) (*NowPlaying, error) {
	var np NowPlaying
	var playlistIDs, controllerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT channel, COALESCE(clip_id,''), COALESCE(seq,0), COALESCE(title,''),
		       COALESCE(duration_seconds,0), COALESCE(playlist_index,0), playlist_ids, controller_id,
		       started_at, updated_at
		FROM now_playing WHERE channel=$1`, channel).
		Scan(&np.Channel, &np.ClipID, &np.Seq, &np.Title,
			&np.Duration, &np.PlaylistIndex, &playlistIDs, &controllerID,
			&np.StartedAt, &np.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("get now playing: %w", err)
	}
	if playlistIDs.Valid && playlistIDs.String != "" {
		np.PlaylistIDs = strings.Split(playlistIDs.String, ",")
	}
	np.ControllerID = controllerID.String
	return &np, nil
}

func (s *pgStore) Heartbeat(ctx context.Context, channel, controllerID string, timeout time.Duration) (bool, error) {
	// Conditional update: the claimant keeps the role, or takes it over from a
	// stale owner. One statement, so two claimants cannot both win the same row.
	res, err := s.db.ExecContext(ctx, `
		UPDATE now_playing SET controller_id=$2, updated_at=NOW()
		WHERE channel=$1
		  AND (controller_id=$2 OR controller_id IS NULL OR controller_id=''
		       OR updated_at < NOW() - ($3 * interval '1 second'))`,
		channel, controllerID, timeout.Seconds())
	if err != nil {
		return false, fmt.Errorf("heartbeat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *pgStore) Issue(ctx context.Context, channel, kind string, payload []byte) (string, error) {
	nonce := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_mailbox (channel, kind, nonce, payload, issued_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (channel, kind) DO UPDATE SET
			nonce=EXCLUDED.nonce, payload=EXCLUDED.payload, issued_at=NOW()`,
		channel, kind, nonce, string(payload))
	if err != nil {
		return "", fmt.Errorf("issue %s: %w", kind, err)
	}
	return nonce, nil
}

func (s *pgStore) PollAndConsume(ctx context.Context, channel, kind string, window time.Duration) (*Command, error) {
	// One DELETE ... RETURNING: the first poller to delete the row gets it, any
	// concurrent poller deletes nothing. Freshness is evaluated server-side in
	// the same statement; a stale row is removed here but never returned.
	var cmd Command
	var payload sql.NullString
	var fresh bool
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM command_mailbox
		WHERE channel=$1 AND kind=$2
		RETURNING nonce, payload, issued_at, (NOW() - issued_at) <= ($3 * interval '1 second')`,
		channel, kind, window.Seconds()).
		Scan(&cmd.Nonce, &payload, &cmd.IssuedAt, &fresh)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", kind, err)
	}
	if !fresh {
		return nil, nil
	}
	cmd.Kind = kind
	if payload.Valid && payload.String != "" {
		cmd.Payload = []byte(payload.String)
	}
	return &cmd, nil
}

func (s *pgStore) SweepExpired(ctx context.Context, windows map[string]time.Duration) (int64, error) {
	var total int64
	for kind, window := range windows {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM command_mailbox
			WHERE kind=$1 AND issued_at < NOW() - ($2 * interval '1 second')`,
			kind, window.Seconds())
		if err != nil {
			return total, fmt.Errorf("sweep %s: %w", kind, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
