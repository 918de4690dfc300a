package kickapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newMockKickServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetChannelID(t *testing.T) {
	srv := newMockKickServer(t, map[string]http.HandlerFunc{
		"/channels": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("slug") != "someslug" {
				t.Errorf("slug = %q", r.URL.Query().Get("slug"))
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"broadcaster_user_id": 777}},
			})
		},
	})

	c := &Client{BaseURL: srv.URL}
	id, err := c.GetChannelID(context.Background(), "someslug")
	if err != nil {
		t.Fatalf("GetChannelID: %v", err)
	}
	if id != 777 {
		t.Errorf("id = %d, want 777", id)
	}
}

func TestGetChannelIDNotFound(t *testing.T) {
	srv := newMockKickServer(t, map[string]http.HandlerFunc{
		"/channels": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		},
	})

	c := &Client{BaseURL: srv.URL}
	if _, err := c.GetChannelID(context.Background(), "nobody"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestFetchClipsPagination(t *testing.T) {
	srv := newMockKickServer(t, map[string]http.HandlerFunc{
		"/channels": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"broadcaster_user_id": 777}},
			})
		},
		"/clips": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("broadcaster_user_id") != "777" {
				t.Errorf("broadcaster_user_id = %q", r.URL.Query().Get("broadcaster_user_id"))
			}
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Query().Get("cursor") {
			case "":
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"id": "k1", "title": "one", "created_at": "2024-01-01T00:00:00Z",
							"duration": 15.0, "view_count": 3, "category_id": "c9"},
						{"id": "k-bad", "created_at": "garbage"},
					},
					"pagination": map[string]string{"cursor": "more"},
				})
			case "more":
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"id": "k2", "title": "two", "created_at": "2024-01-02T00:00:00Z"},
					},
					"pagination": map[string]string{"cursor": ""},
				})
			default:
				t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
				w.WriteHeader(http.StatusBadRequest)
			}
		},
	})

	c := &Client{BaseURL: srv.URL}
	clips, err := c.FetchClips(context.Background(), "someslug")
	if err != nil {
		t.Fatalf("FetchClips: %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2 (bad timestamp skipped)", len(clips))
	}
	if clips[0].PlatformClipID != "k1" || clips[0].GameID != "c9" {
		t.Errorf("first clip %+v", clips[0])
	}
	if clips[1].PlatformClipID != "k2" {
		t.Errorf("second clip %+v", clips[1])
	}
}

func TestPlatform(t *testing.T) {
	c := &Client{}
	if c.Platform() != "kick" {
		t.Errorf("Platform() = %q", c.Platform())
	}
}
