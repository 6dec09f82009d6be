package api

import (
	"net/http"

	"github.com/mcpregistry/dashboard/internal/domain"
	"github.com/mcpregistry/dashboard/internal/registry"
)

// ListWorkspaces returns all workspaces with unresolved members flagged
func (h *Handlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.registry.ListWorkspaces()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.WorkspaceListResponse{
		Workspaces: workspaces,
		Metadata:   domain.ListMetadata{Count: len(workspaces)},
	})
}

// GetWorkspace returns a workspace by name
func (h *Handlers) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.registry.GetWorkspace(pathParam(r, "name"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// CreateWorkspace appends a workspace record to workspaces.json
func (h *Handlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var ws domain.Workspace
	if err := decodeBody(w, r, &ws); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	err := h.registry.CreateWorkspace(r.Context(), ws)
	recordWrite(registry.WorkspacesFile, err)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.logger.Info("workspace created", "name", ws.Name, "members", len(ws.Servers))
	h.respondWorkspace(w, r, ws.Name, http.StatusCreated)
}

// UpdateWorkspace replaces a workspace record
func (h *Handlers) UpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")

	var ws domain.Workspace
	if err := decodeBody(w, r, &ws); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if ws.Name == "" {
		ws.Name = name
	}

	err := h.registry.UpdateWorkspace(r.Context(), name, ws)
	recordWrite(registry.WorkspacesFile, err)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.logger.Info("workspace updated", "name", name)
	h.respondWorkspace(w, r, ws.Name, http.StatusOK)
}

// DeleteWorkspace removes a workspace record
func (h *Handlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")

	err := h.registry.DeleteWorkspace(r.Context(), name)
	recordWrite(registry.WorkspacesFile, err)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.logger.Info("workspace deleted", "name", name)
	w.WriteHeader(http.StatusNoContent)
}

// RunWorkspace delegates a workspace run to the manager CLI
func (h *Handlers) RunWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.registry.GetWorkspace(pathParam(r, "name"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.delegate(w, r, "workspace run", ws.Name, h.cli.RunWorkspace)
}

// respondWorkspace writes the stored record with missing members resolved
func (h *Handlers) respondWorkspace(w http.ResponseWriter, r *http.Request, name string, status int) {
	view, err := h.registry.GetWorkspace(name)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, status, view)
}
