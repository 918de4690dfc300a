package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/cliploop/catalog"
	"github.com/onnwee/cliploop/playback"
	"github.com/onnwee/cliploop/telemetry"
)

// HandleChannelsDispatcher routes requests under /channels/{channel}/* to the
// per-channel catalog and playback handlers.
func (h *Handlers) HandleChannelsDispatcher(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/channels/")
	parts := strings.Split(path, "/")
	channel := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	if channel == "" {
		http.NotFound(w, r)
		return
	}
	// Playback state is keyed by the normalized channel, so the raw path
	// segment must never reach a sub-handler; a mixed-case URL would
	// otherwise address a parallel register and mailbox.
	channel, err := catalog.NormalizeChannel(channel)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	switch {
	case tail == "clips":
		h.handleClipsList(w, r, channel)
	case strings.HasPrefix(tail, "clips/"):
		h.handleClipBySeq(w, r, channel, strings.TrimPrefix(tail, "clips/"))
	case tail == "games":
		h.handleGames(w, r, channel)
	case tail == "nowplaying":
		h.handleNowPlaying(w, r, channel)
	case tail == "heartbeat":
		h.handleHeartbeat(w, r, channel)
	case strings.HasPrefix(tail, "commands/"):
		h.handleCommands(w, r, channel, strings.TrimPrefix(tail, "commands/"))
	case tail == "filter":
		h.handleFilter(w, r, channel)
	case tail == "blocked":
		h.handleBlockedList(w, r, channel)
	case tail == "block":
		h.handleBlock(w, r, channel, true)
	case tail == "unblock":
		h.handleBlock(w, r, channel, false)
	default:
		http.NotFound(w, r)
	}
}

// handleClipsList returns the channel's non-blocked clips with optional game
// filter, title search, sorting and pagination.
//
//	?games=id1,id2&q=term1+term2&sort=views|date|seq&desc=1&limit=50&offset=0
func (h *Handlers) handleClipsList(w http.ResponseWriter, r *http.Request, channel string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	opts := catalog.ListOptions{
		Limit:  parseIntQuery(r, "limit", 50),
		Offset: parseIntQuery(r, "offset", 0),
		Desc:   r.URL.Query().Get("desc") == "1" || r.URL.Query().Get("desc") == "true",
	}
	if v := r.URL.Query().Get("games"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				opts.GameIDs = append(opts.GameIDs, id)
			}
		}
	}
	if v := r.URL.Query().Get("q"); v != "" {
		opts.TitleTerms = strings.Fields(v)
	}
	switch r.URL.Query().Get("sort") {
	case "views":
		opts.SortKey = catalog.SortViews
	case "date":
		opts.SortKey = catalog.SortCreatedAt
	default:
		opts.SortKey = catalog.SortSeq
	}
	var clips []catalog.Clip
	var err error
	telemetry.TimeFunc(telemetry.CatalogQueryDuration, func() {
		clips, err = catalog.ListClips(r.Context(), h.db, channel, opts)
	})
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clips)
}

func (h *Handlers) handleClipBySeq(w http.ResponseWriter, r *http.Request, channel, rest string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if rest == "random" {
		var gameIDs []string
		state, err := catalog.GetFilter(r.Context(), h.db, channel)
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Error("read category filter for random clip",
				slog.String("channel", channel), slog.String("component", "http"), slog.Any("err", err))
		} else if state.Active {
			gameIDs = state.GameIDs
		}
		clip, err := catalog.RandomClip(r.Context(), h.db, channel, gameIDs)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clip)
		return
	}
	if rest == "top" {
		clips, err := catalog.TopClips(r.Context(), h.db, channel, parseIntQuery(r, "limit", 25))
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clips)
		return
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		http.Error(w, "invalid clip number", http.StatusBadRequest)
		return
	}
	clip, err := catalog.GetClipBySeq(r.Context(), h.db, channel, seq)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (h *Handlers) handleGames(w http.ResponseWriter, r *http.Request, channel string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	games, err := catalog.ChannelGames(r.Context(), h.db, channel, parseIntQuery(r, "limit", 50))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// handleNowPlaying serves the register: GET derives the poller view, POST is
// the controller's unconditional last-writer-wins overwrite.
func (h *Handlers) handleNowPlaying(w http.ResponseWriter, r *http.Request, channel string) {
	switch r.Method {
	case http.MethodGet:
		state, err := h.coord.GetNowPlaying(r.Context(), channel)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	case http.MethodPost:
		var np playback.NowPlaying
		if err := decodeBody(r, &np); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		np.Channel = channel
		if np.ClipID == "" {
			http.Error(w, "clip_id is required", http.StatusBadRequest)
			return
		}
		stored, err := h.coord.SetNowPlaying(r.Context(), np)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stored)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleHeartbeat(w http.ResponseWriter, r *http.Request, channel string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ControllerID string `json:"controller_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.ControllerID == "" {
		http.Error(w, "controller_id is required", http.StatusBadRequest)
		return
	}
	owner, err := h.coord.Heartbeat(r.Context(), channel, body.ControllerID)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"controller": owner})
}

// handleCommands routes commands/{kind} (POST: issue) and commands/{kind}/poll
// (POST: consume). Polling is a POST because a successful poll destroys the entry.
func (h *Handlers) handleCommands(w http.ResponseWriter, r *http.Request, channel, rest string) {
	kind := rest
	poll := false
	if strings.HasSuffix(rest, "/poll") {
		kind = strings.TrimSuffix(rest, "/poll")
		poll = true
	}
	if !playback.ValidKind(kind) {
		http.Error(w, "unknown command kind", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if poll {
		cmd, err := h.coord.Poll(r.Context(), channel, kind)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		if cmd == nil {
			writeJSON(w, http.StatusOK, map[string]any{"command": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"command": cmd})
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(payload) > 0 && !json.Valid(payload) {
		http.Error(w, "payload must be JSON", http.StatusBadRequest)
		return
	}
	nonce, err := h.coord.Issue(r.Context(), channel, kind, payload)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

// handleFilter serves the category filter: GET state, PUT set, DELETE clear.
func (h *Handlers) handleFilter(w http.ResponseWriter, r *http.Request, channel string) {
	switch r.Method {
	case http.MethodGet:
		state, err := catalog.GetFilter(r.Context(), h.db, channel)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	case http.MethodPut, http.MethodPost:
		var body struct {
			Query string `json:"query"`
		}
		if err := decodeBody(r, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := catalog.SetFilter(r.Context(), h.db, channel, body.Query)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		status := http.StatusOK
		if !res.Matched {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, res)
	case http.MethodDelete:
		if err := catalog.ClearFilter(r.Context(), h.db, channel); err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleBlockedList(w http.ResponseWriter, r *http.Request, channel string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	blocked, err := catalog.ListBlocked(r.Context(), h.db, channel)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocked)
}

func (h *Handlers) handleBlock(w http.ResponseWriter, r *http.Request, channel string, block bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Seq int64 `json:"seq"`
	}
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var res *catalog.BlockResult
	var err error
	if block {
		res, err = catalog.Block(r.Context(), h.db, channel, body.Seq)
	} else {
		res, err = catalog.Unblock(r.Context(), h.db, channel, body.Seq)
	}
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
