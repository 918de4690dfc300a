package server

import (
	"net/http"
	"strings"

	"github.com/onnwee/cliploop/catalog"
)

// adminChannel resolves the target channel for an admin operation: explicit
// ?channel= wins, otherwise the single configured channel. Ambiguous requests
// (several configured channels, none named) are rejected.
func (h *Handlers) adminChannel(r *http.Request) (string, bool) {
	if ch := strings.TrimSpace(r.URL.Query().Get("channel")); ch != "" {
		return strings.ToLower(ch), true
	}
	if len(h.cfg.TwitchChannels) == 1 {
		return h.cfg.TwitchChannels[0], true
	}
	return "", false
}

// HandleAdminImportScan triggers an immediate incremental import for a channel,
// outside the periodic sync schedule.
func (h *Handlers) HandleAdminImportScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(h.sources) == 0 {
		http.Error(w, "no clip sources configured", http.StatusServiceUnavailable)
		return
	}
	channel, ok := h.adminChannel(r)
	if !ok {
		http.Error(w, "channel query parameter required", http.StatusBadRequest)
		return
	}
	if err := catalog.SyncOnce(r.Context(), h.db, channel, h.sources, h.resolver); err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "channel": channel})
}

// HandleAdminBootstrap performs the guarded one-time initial numbering for a
// channel. The first configured source seeds 1..N; any further sources append
// through the normal import path so their clips also get permanent numbers.
func (h *Handlers) HandleAdminBootstrap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(h.sources) == 0 {
		http.Error(w, "no clip sources configured", http.StatusServiceUnavailable)
		return
	}
	channel, ok := h.adminChannel(r)
	if !ok {
		http.Error(w, "channel query parameter required", http.StatusBadRequest)
		return
	}

	first := h.sources[0]
	raw, err := first.FetchClips(r.Context(), channel)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	res, err := catalog.Bootstrap(r.Context(), h.db, channel, first.Platform(), raw)
	if err != nil {
		if strings.Contains(err.Error(), catalog.ErrAlreadyBootstrapped.Error()) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeCatalogError(w, err)
		return
	}

	results := map[string]catalog.ImportResult{first.Platform(): res}
	for _, src := range h.sources[1:] {
		raw, err := src.FetchClips(r.Context(), channel)
		if err != nil {
			results[src.Platform()] = catalog.ImportResult{Errors: []string{err.Error()}}
			continue
		}
		ir, err := catalog.ImportBatch(r.Context(), h.db, channel, src.Platform(), raw)
		if err != nil {
			ir.Errors = append(ir.Errors, err.Error())
		}
		results[src.Platform()] = ir
	}

	if h.resolver != nil {
		_ = catalog.ResolveGames(r.Context(), h.db, h.resolver)
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": channel, "platforms": results})
}
