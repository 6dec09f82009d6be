package api

import (
	"context"
	"net/http"

	"github.com/mcpregistry/dashboard/internal/domain"
	"github.com/mcpregistry/dashboard/internal/manager"
	"github.com/mcpregistry/dashboard/internal/middleware"
	"github.com/mcpregistry/dashboard/internal/registry"
)

// ListServers returns servers, optionally filtered by namespace and type
func (h *Handlers) ListServers(w http.ResponseWriter, r *http.Request) {
	filter := domain.ServerFilter{
		Namespace: r.URL.Query().Get("namespace"),
		Type:      r.URL.Query().Get("type"),
	}

	servers, err := h.registry.ListServers(filter)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.ServerListResponse{
		Servers:  servers,
		Metadata: domain.ListMetadata{Count: len(servers)},
	})
}

// GetServer returns a server by name or namespace/name
func (h *Handlers) GetServer(w http.ResponseWriter, r *http.Request) {
	server, err := h.registry.GetServer(pathParam(r, "name"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

// CreateServer appends a server record to servers.json
func (h *Handlers) CreateServer(w http.ResponseWriter, r *http.Request) {
	var server domain.Server
	if err := decodeBody(w, r, &server); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	err := h.registry.CreateServer(r.Context(), server)
	recordWrite(registry.ServersFile, err)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.logger.Info("server created", "name", server.QualifiedName())
	writeJSON(w, http.StatusCreated, server)
}

// UpdateServer replaces a server record. An empty body name keeps the
// record's current name.
func (h *Handlers) UpdateServer(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")

	var server domain.Server
	if err := decodeBody(w, r, &server); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if server.Name == "" {
		if existing, err := h.registry.GetServer(name); err == nil {
			server.Name = existing.Name
		}
	}

	err := h.registry.UpdateServer(r.Context(), name, server)
	recordWrite(registry.ServersFile, err)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.logger.Info("server updated", "name", name)
	writeJSON(w, http.StatusOK, server)
}

// DeleteServer removes a server record
func (h *Handlers) DeleteServer(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")

	err := h.registry.DeleteServer(r.Context(), name)
	recordWrite(registry.ServersFile, err)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.logger.Info("server deleted", "name", name)
	w.WriteHeader(http.StatusNoContent)
}

// StartServer delegates a server start to the manager CLI
func (h *Handlers) StartServer(w http.ResponseWriter, r *http.Request) {
	h.serverAction(w, r, "start", h.cli.StartServer)
}

// StopServer delegates a server stop to the manager CLI
func (h *Handlers) StopServer(w http.ResponseWriter, r *http.Request) {
	h.serverAction(w, r, "stop", h.cli.StopServer)
}

type cliAction func(ctx context.Context, name string) (*manager.Result, error)

func (h *Handlers) serverAction(w http.ResponseWriter, r *http.Request, action string, run cliAction) {
	name := pathParam(r, "name")

	server, err := h.registry.GetServer(name)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	h.delegate(w, r, "server "+action, server.QualifiedName(), run)
}

// delegate runs a manager CLI action and writes its outcome
func (h *Handlers) delegate(w http.ResponseWriter, r *http.Request, action, target string, run cliAction) {
	res, err := run(r.Context(), target)
	if err != nil {
		middleware.ManagerActions.WithLabelValues(action, "error").Inc()
		h.logger.Warn("manager action failed",
			"action", action,
			"target", target,
			"error", err,
		)
		h.writeErr(w, r, err)
		return
	}
	middleware.ManagerActions.WithLabelValues(action, "ok").Inc()

	writeJSON(w, http.StatusOK, domain.ActionResponse{
		Action:   action,
		Target:   target,
		Output:   res.Output,
		Duration: res.Duration.String(),
	})
}

func recordWrite(file string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	middleware.ConfigWrites.WithLabelValues(file, result).Inc()
}
