package catalog

import (
	"context"
	"time"
)

// RawClip is an upstream clip descriptor as fetched from a platform API,
// before deduplication and sequence assignment.
type RawClip struct {
	PlatformClipID string
	Title          string
	Duration       float64
	CreatedAt      time.Time
	ViewCount      int64
	GameID         string
	CreatorName    string
	ThumbnailURL   string
}

// Source supplies batches of upstream clips for a channel. Implementations own
// pagination, rate limiting, and auth; the catalog only dedups and numbers.
type Source interface {
	Platform() string
	FetchClips(ctx context.Context, channel string) ([]RawClip, error)
}

// GameResolver resolves upstream category IDs to display metadata.
type GameResolver interface {
	LookupGames(ctx context.Context, ids []string) ([]GameInfo, error)
}
