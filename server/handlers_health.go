package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/cliploop/catalog"
	"github.com/onnwee/cliploop/db"
	"github.com/onnwee/cliploop/telemetry"
)

// sweepStaleAfter bounds how long the mailbox sweeper may sit idle once it
// has run at least once before readiness reports it wedged.
const sweepStaleAfter = 10 * time.Minute

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
// A channel with an empty catalog is ready (bootstrap pending), but an
// unreachable database or missing schema is not.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"schema", func() error {
			var one int
			return h.db.QueryRowContext(r.Context(), "SELECT 1 FROM clips LIMIT 1").Scan(&one)
		}},
		{"channels", func() error {
			if len(h.cfg.TwitchChannels) == 0 {
				return fmt.Errorf("no channels configured")
			}
			return nil
		}},
		{"sweep", func() error {
			last := h.coord.LastSweep()
			if last.IsZero() {
				// Sweeper has not ticked yet; lazy deletion on poll keeps
				// delivery correct in the meantime.
				return nil
			}
			if age := time.Since(last); age > sweepStaleAfter {
				return fmt.Errorf("mailbox sweep stale for %s", age.Truncate(time.Second))
			}
			return nil
		}},
		{"bot_token", func() error {
			if h.cfg.TwitchBotUsername == "" {
				return nil
			}
			if h.cfg.TwitchOAuthToken != "" {
				return nil
			}
			access, _, expiry, _, err := db.GetOAuthToken(r.Context(), h.db, "twitch")
			if err != nil {
				return err
			}
			if access == "" {
				return fmt.Errorf("bot configured but no twitch token stored")
			}
			if !expiry.IsZero() && time.Since(expiry) > time.Hour {
				return fmt.Errorf("stored twitch token expired at %s", expiry.UTC().Format(time.RFC3339))
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			// An empty clips table scans zero rows; only real errors fail the check.
			if check.name == "schema" && err.Error() == "sql: no rows in result set" {
				continue
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports per-channel operational state: catalog size, blocked
// count, last sync time, bootstrap mark, filter and playback activity.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type channelStatus struct {
		Channel        string `json:"channel"`
		Clips          int64  `json:"clips"`
		Blocked        int64  `json:"blocked"`
		LastSync       string `json:"last_sync,omitempty"`
		BootstrappedAt string `json:"bootstrapped_at,omitempty"`
		FilterActive   bool   `json:"filter_active"`
		Filter         string `json:"filter,omitempty"`
		Playing        bool   `json:"playing"`
	}
	out := make([]channelStatus, 0, len(h.cfg.TwitchChannels))
	for _, ch := range h.cfg.TwitchChannels {
		cs := channelStatus{Channel: ch}
		cs.Clips, cs.Blocked, _ = catalog.CountClips(r.Context(), h.db, ch)
		telemetry.SetCatalogSize(ch, cs.Clips)
		cs.LastSync, _ = db.GetKV(r.Context(), h.db, "last_sync:"+ch)
		cs.BootstrappedAt, _ = db.GetKV(r.Context(), h.db, "bootstrap:"+ch)
		if fs, err := catalog.GetFilter(r.Context(), h.db, ch); err == nil && fs.Active {
			cs.FilterActive = true
			cs.Filter = fs.DisplayName
		}
		if st, err := h.coord.GetNowPlaying(r.Context(), ch); err == nil {
			cs.Playing = st.Active && !st.Ended
		}
		out = append(out, cs)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels":       out,
		"playback_store": h.cfg.PlaybackStore,
	})
}
