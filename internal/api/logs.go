package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mcpregistry/dashboard/internal/domain"
	"github.com/mcpregistry/dashboard/internal/logs"
)

const defaultLogLimit = 1000

// ListLogs returns filtered log entries, flat or grouped by workspace.
// Level counts ignore the level filter so the UI can show every tab.
func (h *Handlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since, err := logs.ParseSince(q.Get("since"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	limit := defaultLogLimit
	if v := q.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 0 {
			writeError(w, http.StatusBadRequest, "Bad Request", "limit must be a non-negative integer")
			return
		}
		limit = l
	}

	group, _ := strconv.ParseBool(q.Get("group"))

	scoped, err := h.logs.Query(r.Context(), q.Get("file"), logs.Filter{
		Workspace: q.Get("workspace"),
		Server:    q.Get("server"),
		Query:     q.Get("q"),
		Since:     since,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	matched := logs.Apply(scoped, logs.Filter{Level: q.Get("level")})
	resp := domain.LogsResponse{
		Total:   len(matched),
		Levels:  logs.CountLevels(scoped),
		Grouped: group,
	}

	entries := logs.Apply(matched, logs.Filter{Limit: limit})
	if group {
		resp.Groups = logs.Group(entries)
	} else {
		resp.Entries = entries
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListLogFiles returns the log files on disk
func (h *Handlers) ListLogFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.logs.ListFiles()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.LogFileListResponse{
		Files: files,
		Dir:   h.logs.Dir(),
	})
}
