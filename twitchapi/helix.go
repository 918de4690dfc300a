// Package twitchapi provides a minimal Twitch Helix client covering the
// surface the catalog needs: user lookup, clip listing and game metadata.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/onnwee/cliploop/catalog"
)

// DefaultHelixURL is the production Helix API base.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// HelixClient talks to the Twitch Helix API using an app access token.
type HelixClient struct {
	Tokens     *TokenSource
	ClientID   string
	HTTPClient *http.Client
	BaseURL    string // override for tests; defaults to DefaultHelixURL
}

func (c *HelixClient) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultHelixURL
}

func (c *HelixClient) do(ctx context.Context, path string, q url.Values, out any) error {
	tok, err := c.Tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("get app token: %w", err)
	}
	u := c.baseURL() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix %s failed: %s: %s", path, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to a Twitch user id.
func (c *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	q := url.Values{}
	q.Set("login", login)
	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, "/users", q, &payload); err != nil {
		return "", err
	}
	if len(payload.Data) == 0 {
		return "", fmt.Errorf("twitch user not found: %s", login)
	}
	return payload.Data[0].ID, nil
}

type helixClip struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	CreatedAt       string  `json:"created_at"`
	Duration        float64 `json:"duration"`
	ViewCount       int64   `json:"view_count"`
	GameID          string  `json:"game_id"`
	CreatorName     string  `json:"creator_name"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	BroadcasterName string  `json:"broadcaster_name"`
}

// Platform identifies this source's clips.
func (c *HelixClient) Platform() string { return catalog.PlatformTwitch }

// FetchClips pages through /clips for the channel's full clip history.
// Twitch caps pages at 100 entries; the pagination cursor drives iteration.
func (c *HelixClient) FetchClips(ctx context.Context, channel string) ([]catalog.RawClip, error) {
	userID, err := c.GetUserID(ctx, channel)
	if err != nil {
		return nil, err
	}
	var out []catalog.RawClip
	cursor := ""
	for {
		q := url.Values{}
		q.Set("broadcaster_id", userID)
		q.Set("first", "100")
		if cursor != "" {
			q.Set("after", cursor)
		}
		var payload struct {
			Data       []helixClip `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		if err := c.do(ctx, "/clips", q, &payload); err != nil {
			return out, err
		}
		for _, hc := range payload.Data {
			created, perr := time.Parse(time.RFC3339, hc.CreatedAt)
			if perr != nil {
				slog.Warn("skipping clip with bad created_at",
					slog.String("clip_id", hc.ID), slog.String("created_at", hc.CreatedAt))
				continue
			}
			out = append(out, catalog.RawClip{
				PlatformClipID: hc.ID,
				Title:          hc.Title,
				Duration:       hc.Duration,
				CreatedAt:      created,
				ViewCount:      hc.ViewCount,
				GameID:         hc.GameID,
				CreatorName:    hc.CreatorName,
				ThumbnailURL:   hc.ThumbnailURL,
			})
		}
		if payload.Pagination.Cursor == "" || len(payload.Data) == 0 {
			break
		}
		cursor = payload.Pagination.Cursor
	}
	return out, nil
}

// LookupGames resolves up to 100 game ids to display names via /games.
func (c *HelixClient) LookupGames(ctx context.Context, ids []string) ([]catalog.GameInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > 100 {
		ids = ids[:100]
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	var payload struct {
		Data []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			BoxArtURL string `json:"box_art_url"`
		} `json:"data"`
	}
	if err := c.do(ctx, "/games", q, &payload); err != nil {
		return nil, err
	}
	out := make([]catalog.GameInfo, 0, len(payload.Data))
	for _, g := range payload.Data {
		out = append(out, catalog.GameInfo{GameID: g.ID, Name: g.Name, BoxArtURL: g.BoxArtURL})
	}
	return out, nil
}
