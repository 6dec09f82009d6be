package api

import (
	"net/http"
	"strconv"

	"github.com/mcpregistry/dashboard/internal/domain"
)

// ListConfigFiles returns the JSON documents in the config directory
func (h *Handlers) ListConfigFiles(w http.ResponseWriter, r *http.Request) {
	store := h.registry.Store()

	files, err := store.ListFiles()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.ConfigListResponse{
		Dir:            store.Dir(),
		Files:          files,
		HistoryEnabled: store.HistoryEnabled(),
	})
}

// GetConfigFile returns a config document exactly as stored on disk
func (h *Handlers) GetConfigFile(w http.ResponseWriter, r *http.Request) {
	data, err := h.registry.Store().ReadFile(pathParam(r, "file"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ConfigHistory lists recent commits of the config directory
func (h *Handlers) ConfigHistory(w http.ResponseWriter, r *http.Request) {
	store := h.registry.Store()
	if !store.HistoryEnabled() {
		writeError(w, http.StatusNotFound, "Not Found", "config history is not enabled (set GIT_HISTORY=true)")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 0 {
			writeError(w, http.StatusBadRequest, "Bad Request", "limit must be a non-negative integer")
			return
		}
		limit = l
	}

	commits, err := store.History(r.URL.Query().Get("file"), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commits": commits,
		"count":   len(commits),
	})
}
