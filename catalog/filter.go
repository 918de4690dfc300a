package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FilterState is a channel's active category filter. Inactive is a definite
// shape (Active=false, empty fields) rather than an omitted response, so
// pollers can tell "no filter" apart from an error. The nonce changes on every
// set, letting players detect filter changes without diffing game id lists.
type FilterState struct {
	Active      bool      `json:"active"`
	GameIDs     []string  `json:"game_ids,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Nonce       string    `json:"nonce,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// FilterResult is the outcome of SetFilter. On a miss, AvailableGames carries
// the channel's games (top N by clip count) so the moderator can retry with a
// valid term.
type FilterResult struct {
	Matched        bool       `json:"matched"`
	GameIDs        []string   `json:"game_ids,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	ClipCount      int64      `json:"clip_count"`
	Nonce          string     `json:"nonce,omitempty"`
	AvailableGames []GameInfo `json:"available_games,omitempty"`
}

// matchGames returns the games whose display name (or raw id, when the name is
// unresolved) contains query case-insensitively. Matching spans all games, not
// just the best one, so one command can filter to a family of related categories.
func matchGames(games []GameInfo, query string) []GameInfo {
	q := strings.ToLower(strings.TrimSpace(query))
	matched := make([]GameInfo, 0)
	for _, g := range games {
		name := g.Name
		if name == "" {
			name = g.GameID
		}
		if strings.Contains(strings.ToLower(name), q) {
			matched = append(matched, g)
		}
	}
	return matched
}

func filterDisplayName(matched []GameInfo) string {
	names := make([]string, 0, len(matched))
	for _, g := range matched {
		name := g.Name
		if name == "" {
			name = g.GameID
		}
		names = append(names, name)
	}
	if len(names) > 3 {
		return fmt.Sprintf("%s +%d more", strings.Join(names[:3], ", "), len(names)-3)
	}
	return strings.Join(names, ", ")
}

// SetFilter matches query against the channel's cached game names and persists
// the matching game id set as the active filter, stamping a fresh nonce.
func SetFilter(ctx context.Context, db *sql.DB, channel, query string) (*FilterResult, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Msg: "category query is required"}
	}

	games, err := channelGames(ctx, db, ch, 200)
	if err != nil {
		return nil, err
	}

	matched := matchGames(games, query)
	if len(matched) == 0 {
		avail := games
		if len(avail) > 15 {
			avail = avail[:15]
		}
		return &FilterResult{Matched: false, AvailableGames: avail}, nil
	}

	ids := make([]string, 0, len(matched))
	var clipCount int64
	for _, g := range matched {
		ids = append(ids, g.GameID)
		clipCount += g.ClipCount
	}
	display := filterDisplayName(matched)
	nonce := uuid.New().String()

	_, err = db.ExecContext(ctx, `INSERT INTO category_filter (channel, game_ids, display_name, nonce, updated_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (channel) DO UPDATE SET game_ids=EXCLUDED.game_ids, display_name=EXCLUDED.display_name,
			nonce=EXCLUDED.nonce, updated_at=NOW()`,
		ch, strings.Join(ids, ","), display, nonce)
	if err != nil {
		return nil, fmt.Errorf("persist filter: %w", err)
	}

	return &FilterResult{Matched: true, GameIDs: ids, DisplayName: display, ClipCount: clipCount, Nonce: nonce}, nil
}

// ClearFilter removes a channel's category filter. Clearing an absent filter is a no-op.
func ClearFilter(ctx context.Context, db *sql.DB, channel string) error {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM category_filter WHERE channel=$1`, ch)
	if err != nil {
		return fmt.Errorf("clear filter: %w", err)
	}
	return nil
}

// GetFilter returns the channel's filter state; Active=false when none is set.
func GetFilter(ctx context.Context, db *sql.DB, channel string) (*FilterState, error) {
	ch, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	var idsCSV, display, nonce string
	var updated time.Time
	err = db.QueryRowContext(ctx,
		`SELECT game_ids, COALESCE(display_name,''), nonce, updated_at FROM category_filter WHERE channel=$1`, ch).
		Scan(&idsCSV, &display, &nonce, &updated)
	if err == sql.ErrNoRows {
		return &FilterState{Active: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get filter: %w", err)
	}
	var ids []string
	for _, id := range strings.Split(idsCSV, ",") {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return &FilterState{Active: true, GameIDs: ids, DisplayName: display, Nonce: nonce, UpdatedAt: updated}, nil
}
