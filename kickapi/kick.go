// Package kickapi provides a minimal Kick API client for channel lookup and
// clip listing. Auth uses the OAuth client credentials flow.
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/onnwee/cliploop/catalog"
)

const (
	// DefaultBaseURL is the production Kick public API base.
	DefaultBaseURL = "https://api.kick.com/public/v1"
	// DefaultTokenURL is the Kick OAuth token endpoint.
	DefaultTokenURL = "https://id.kick.com/oauth/token" //nolint:gosec // G101: endpoint URL, not a credential
)

// Client talks to the Kick public API using an app access token.
type Client struct {
	BaseURL    string // override for tests; defaults to DefaultBaseURL
	HTTPClient *http.Client
}

// NewClient builds a Client whose HTTP transport injects client-credentials
// tokens from the given endpoint. tokenURL defaults to DefaultTokenURL.
func NewClient(ctx context.Context, clientID, clientSecret, tokenURL string) *Client {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return &Client{HTTPClient: cc.Client(ctx)}
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
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
		return fmt.Errorf("kick %s failed: %s: %s", path, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetChannelID resolves a channel slug to the numeric broadcaster user id.
func (c *Client) GetChannelID(ctx context.Context, slug string) (int64, error) {
	q := url.Values{}
	q.Set("slug", slug)
	var payload struct {
		Data []struct {
			BroadcasterUserID int64 `json:"broadcaster_user_id"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/channels", q, &payload); err != nil {
		return 0, err
	}
	if len(payload.Data) == 0 {
		return 0, fmt.Errorf("kick channel not found: %s", slug)
	}
	return payload.Data[0].BroadcasterUserID, nil
}

type kickClip struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Duration     float64 `json:"duration"`
	CreatedAt    string  `json:"created_at"`
	ViewCount    int64   `json:"view_count"`
	CategoryID   string  `json:"category_id"`
	CreatorName  string  `json:"creator_name"`
	ThumbnailURL string  `json:"thumbnail_url"`
}

// Platform identifies this source's clips.
func (c *Client) Platform() string { return catalog.PlatformKick }

// FetchClips pages through the channel's clips oldest-cursor-first until the
// API stops returning a next cursor.
func (c *Client) FetchClips(ctx context.Context, channel string) ([]catalog.RawClip, error) {
	chanID, err := c.GetChannelID(ctx, channel)
	if err != nil {
		return nil, err
	}
	var out []catalog.RawClip
	cursor := ""
	for {
		q := url.Values{}
		q.Set("broadcaster_user_id", fmt.Sprintf("%d", chanID))
		q.Set("limit", "100")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var payload struct {
			Data       []kickClip `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		if err := c.get(ctx, "/clips", q, &payload); err != nil {
			return out, err
		}
		for _, kc := range payload.Data {
			created, perr := time.Parse(time.RFC3339, kc.CreatedAt)
			if perr != nil {
				slog.Warn("skipping clip with bad created_at",
					slog.String("clip_id", kc.ID), slog.String("created_at", kc.CreatedAt))
				continue
			}
			out = append(out, catalog.RawClip{
				PlatformClipID: kc.ID,
				Title:          kc.Title,
				Duration:       kc.Duration,
				CreatedAt:      created,
				ViewCount:      kc.ViewCount,
				GameID:         kc.CategoryID,
				CreatorName:    kc.CreatorName,
				ThumbnailURL:   kc.ThumbnailURL,
			})
		}
		if payload.Pagination.Cursor == "" || len(payload.Data) == 0 {
			break
		}
		cursor = payload.Pagination.Cursor
	}
	return out, nil
}
