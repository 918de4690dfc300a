// Package server exposes the HTTP API: health, status, metrics, the per-channel
// catalog and playback endpoints that players poll, and admin import controls.
// It includes permissive CORS for development and injects correlation IDs into
// request contexts for consistent logging.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/cliploop/catalog"
	"github.com/onnwee/cliploop/config"
	"github.com/onnwee/cliploop/playback"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	coord      *playback.Coordinator
	cfg        *config.Config
	sources    []catalog.Source
	resolver   catalog.GameResolver
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a Handlers instance with the given dependencies. sources
// may be empty when no platform credentials are configured; the import admin
// endpoints then report 503.
func NewHandlers(db *sql.DB, coord *playback.Coordinator, cfg *config.Config, sources []catalog.Source, resolver catalog.GameResolver) *Handlers {
	return &Handlers{
		db:         db,
		coord:      coord,
		cfg:        cfg,
		sources:    sources,
		resolver:   resolver,
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Over the cap, refuse new states; a failed OAuth flow beats unbounded growth.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// writeCatalogError maps catalog error classes to HTTP statuses.
func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case catalog.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case catalog.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case catalog.IsUnavailable(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
