package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// GameInfo is one cached upstream category. Rows are created lazily when a clip
// first references an unresolved game id; the name and box art are filled in by
// ResolveGames and refreshed opportunistically, but the id mapping is immutable.
type GameInfo struct {
	GameID    string    `json:"game_id"`
	Name      string    `json:"name"`
	BoxArtURL string    `json:"box_art_url,omitempty"`
	ClipCount int64     `json:"clip_count,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

// ResolveGames fills in names for cached games that still lack one, using the
// provided resolver (Helix in production). Resolution failures are logged and
// skipped; unresolved ids keep displaying as raw ids until the next pass.
func ResolveGames(ctx context.Context, db *sql.DB, resolver GameResolver) error {
	rows, err := db.QueryContext(ctx, `SELECT game_id FROM games WHERE COALESCE(name,'')='' LIMIT 100`)
	if err != nil {
		return fmt.Errorf("list unresolved games: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan game id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	infos, err := resolver.LookupGames(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve games: %w", err)
	}
	for _, g := range infos {
		if g.GameID == "" || g.Name == "" {
			continue
		}
		_, err := db.ExecContext(ctx,
			`UPDATE games SET name=$1, box_art_url=$2, updated_at=NOW() WHERE game_id=$3`,
			g.Name, g.BoxArtURL, g.GameID)
		if err != nil {
			slog.Warn("game metadata update failed",
				slog.String("game_id", g.GameID), slog.Any("err", err),
				slog.String("component", "catalog"))
		}
	}
	return nil
}

// channelGames lists the distinct games referenced by a channel's non-blocked
// clips, most-clipped first. Names fall back to the raw game id when unresolved.
func channelGames(ctx context.Context, db *sql.DB, channel string, limit int) ([]GameInfo, error) {
	if limit <= 0 {
		limit = 15
	}
	rows, err := db.QueryContext(ctx, `
		SELECT c.game_id, COALESCE(NULLIF(g.name,''), c.game_id), COALESCE(g.box_art_url,''), COUNT(*)
		FROM clips c
		LEFT JOIN games g ON g.game_id = c.game_id
		WHERE c.channel=$1 AND c.blocked=FALSE AND COALESCE(c.game_id,'') <> ''
		GROUP BY c.game_id, g.name, g.box_art_url
		ORDER BY COUNT(*) DESC
		LIMIT $2`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("channel games: %w", err)
	}
	defer rows.Close()

	games := make([]GameInfo, 0)
	for rows.Next() {
		var g GameInfo
		if err := rows.Scan(&g.GameID, &g.Name, &g.BoxArtURL, &g.ClipCount); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ChannelGames is the exported listing used by /status and the bot's no-match reply.
func ChannelGames(ctx context.Context, db *sql.DB, channel string, limit int) ([]GameInfo, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	return channelGames(ctx, db, ch, limit)
}
