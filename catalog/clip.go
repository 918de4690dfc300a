// Package catalog implements the sequence-numbered clip catalog: durable clip
// storage per channel, permanent sequence allocation across incremental imports,
// the moderation blocklist overlay, the category filter, and the import intake
// boundary. All coordination state lives in Postgres; multi-step operations are
// transactional so invariants are never observably half-applied.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Platforms the importer boundary accepts.
const (
	PlatformTwitch = "twitch"
	PlatformKick   = "kick"
)

// Clip is one catalog row. Seq is permanent once assigned and unique per channel.
type Clip struct {
	Channel        string    `json:"channel"`
	Platform       string    `json:"platform"`
	PlatformClipID string    `json:"clip_id"`
	Seq            int64     `json:"seq"`
	Title          string    `json:"title"`
	Duration       float64   `json:"duration_seconds"`
	CreatedAt      time.Time `json:"created_at"`
	ViewCount      int64     `json:"view_count"`
	GameID         string    `json:"game_id,omitempty"`
	CreatorName    string    `json:"creator_name"`
	ThumbnailURL   string    `json:"thumbnail_url"`
	Blocked        bool      `json:"blocked"`
}

var channelRe = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// NormalizeChannel lowercases and validates a tenant channel name.
func NormalizeChannel(channel string) (string, error) {
	ch := strings.ToLower(strings.TrimSpace(channel))
	if ch == "" {
		return "", &ValidationError{Msg: "channel is required"}
	}
	if !channelRe.MatchString(ch) {
		return "", &ValidationError{Msg: fmt.Sprintf("invalid channel %q (lowercase letters, digits and underscore only)", ch)}
	}
	return ch, nil
}

func validPlatform(platform string) bool {
	return platform == PlatformTwitch || platform == PlatformKick
}

// Sort keys accepted by ListClips.
const (
	SortSeq       = "seq"
	SortViews     = "view_count"
	SortCreatedAt = "created_at"
)

// ListOptions narrows and orders a catalog listing. Blocked clips are always
// excluded; there is no mode that shows them in browse/playback reads.
type ListOptions struct {
	GameIDs    []string
	TitleTerms []string // every term must match the title (case-insensitive substring)
	SortKey    string   // seq | view_count | created_at (default seq)
	Desc       bool
	Limit      int
	Offset     int
}

const clipColumns = `channel, platform, platform_clip_id, seq,
	COALESCE(title,''), COALESCE(duration_seconds,0), COALESCE(created_at, to_timestamp(0)),
	COALESCE(view_count,0), COALESCE(game_id,''), COALESCE(creator_name,''),
	COALESCE(thumbnail_url,''), COALESCE(blocked,FALSE)`

func scanClip(row interface{ Scan(...any) error }) (Clip, error) {
	var c Clip
	err := row.Scan(&c.Channel, &c.Platform, &c.PlatformClipID, &c.Seq,
		&c.Title, &c.Duration, &c.CreatedAt,
		&c.ViewCount, &c.GameID, &c.CreatorName,
		&c.ThumbnailURL, &c.Blocked)
	return c, err
}

// ListClips returns non-blocked clips for a channel, filtered and ordered per opts.
func ListClips(ctx context.Context, db *sql.DB, channel string, opts ListOptions) ([]Clip, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}

	sortCol := SortSeq
	switch opts.SortKey {
	case "", SortSeq:
	case SortViews, SortCreatedAt:
		sortCol = opts.SortKey
	default:
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid sort key %q", opts.SortKey)}
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}

	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var sb strings.Builder
	args := []any{ch}
	sb.WriteString(`SELECT ` + clipColumns + ` FROM clips WHERE channel=$1 AND blocked=FALSE`)
	if len(opts.GameIDs) > 0 {
		placeholders := make([]string, 0, len(opts.GameIDs))
		for _, id := range opts.GameIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		sb.WriteString(" AND game_id IN (" + strings.Join(placeholders, ",") + ")")
	}
	for _, term := range opts.TitleTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		args = append(args, "%"+term+"%")
		sb.WriteString(fmt.Sprintf(" AND title ILIKE $%d", len(args)))
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", sortCol, dir))
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	args = append(args, offset)
	sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	clips := make([]Clip, 0)
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

// GetClipBySeq looks up one clip (blocked or not) by its permanent sequence number.
// A miss is reported with the channel's valid range.
func GetClipBySeq(ctx context.Context, db *sql.DB, channel string, seq int64) (*Clip, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	if seq <= 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("clip number must be positive, got %d", seq)}
	}
	row := db.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE channel=$1 AND seq=$2`, ch, seq)
	c, err := scanClip(row)
	if err == sql.ErrNoRows {
		maxSeq, mErr := MaxSeq(ctx, db, ch)
		if mErr != nil {
			return nil, mErr
		}
		return nil, &SeqNotFoundError{Channel: ch, Seq: seq, MaxSeq: maxSeq}
	}
	if err != nil {
		return nil, fmt.Errorf("get clip by seq: %w", err)
	}
	return &c, nil
}

// MaxSeq returns the highest sequence number assigned for a channel (0 when empty).
func MaxSeq(ctx context.Context, db *sql.DB, channel string) (int64, error) {
	var maxSeq int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM clips WHERE channel=$1`, channel).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return maxSeq, nil
}

// RandomClip picks one non-blocked clip uniformly, honoring an optional game filter.
// Used by the shuffle command.
func RandomClip(ctx context.Context, db *sql.DB, channel string, gameIDs []string) (*Clip, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + clipColumns + ` FROM clips WHERE channel=$1 AND blocked=FALSE`
	args := []any{ch}
	if len(gameIDs) > 0 {
		placeholders := make([]string, 0, len(gameIDs))
		for _, id := range gameIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		q += " AND game_id IN (" + strings.Join(placeholders, ",") + ")"
	}
	q += ` ORDER BY random() LIMIT 1`
	row := db.QueryRowContext(ctx, q, args...)
	c, err := scanClip(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("channel %s: %w", ch, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("random clip: %w", err)
	}
	return &c, nil
}

// TopClips returns the channel's most viewed non-blocked clips.
func TopClips(ctx context.Context, db *sql.DB, channel string, limit int) ([]Clip, error) {
	return ListClips(ctx, db, channel, ListOptions{SortKey: SortViews, Desc: true, Limit: limit})
}

// CountClips returns (total, blocked) clip counts for a channel.
func CountClips(ctx context.Context, db *sql.DB, channel string) (total, blocked int64, err error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return 0, 0, err
	}
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE blocked) FROM clips WHERE channel=$1`, ch).
		Scan(&total, &blocked)
	if err != nil {
		return 0, 0, fmt.Errorf("count clips: %w", err)
	}
	return total, blocked, nil
}
