package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/opskernel/pimhub/internal/logs"
	"github.com/opskernel/pimhub/internal/pim"
	"github.com/opskernel/pimhub/internal/pim/model"
	"github.com/opskernel/pimhub/internal/pim/task"
	"github.com/opskernel/pimhub/internal/wsstream"
)

// PIMHandlers exposes the Facade's install/uninstall/catalogue/task
// operations over HTTP.
type PIMHandlers struct {
	facade *pim.Facade
}

// NewPIMHandlers builds PIMHandlers around a Facade.
func NewPIMHandlers(facade *pim.Facade) *PIMHandlers {
	return &PIMHandlers{facade: facade}
}

type installRequest struct {
	PluginID string `json:"plugin_id"`
	Version  string `json:"version"`
	RepoURL  string `json:"repo_url"`
}

// HandleInstall starts an install task (POST /api/pim/install).
func (h *PIMHandlers) HandleInstall(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	username, ok := requireAuth(w, r)
	if !ok {
		return
	}

	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PluginID) == "" {
		writeJSONError(w, http.StatusBadRequest, "plugin_id is required")
		return
	}

	taskID, err := h.facade.Install(r.Context(), req.PluginID, req.Version, req.RepoURL)
	if err != nil {
		writeJSONError(w, http.StatusForbidden, err.Error())
		return
	}

	logs.LogOperation(username, "pim_install", "install requested: "+req.PluginID, clientIP(r))
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

type uninstallRequest struct {
	PluginID string `json:"plugin_id"`
}

// HandleUninstall starts an uninstall task (POST /api/pim/uninstall).
func (h *PIMHandlers) HandleUninstall(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	username, ok := requireAuth(w, r)
	if !ok {
		return
	}

	var req uninstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PluginID) == "" {
		writeJSONError(w, http.StatusBadRequest, "plugin_id is required")
		return
	}

	taskID, err := h.facade.Uninstall(r.Context(), req.PluginID)
	if err != nil {
		writeJSONError(w, http.StatusForbidden, err.Error())
		return
	}

	logs.LogOperation(username, "pim_uninstall", "uninstall requested: "+req.PluginID, clientIP(r))
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

type taskResponse struct {
	ID            string   `json:"id"`
	Action        string   `json:"action"`
	PluginID      string   `json:"plugin_id"`
	Status        string   `json:"status"`
	Progress      float64  `json:"progress"`
	Message       string   `json:"message"`
	AllMessages   []string `json:"all_messages"`
	ErrorMessages []string `json:"error_messages"`
}

func toTaskResponse(t *task.Task) taskResponse {
	return taskResponse{
		ID:            t.ID,
		Action:        string(t.Action),
		PluginID:      t.PluginID,
		Status:        string(t.Status),
		Progress:      t.Progress,
		Message:       t.Message,
		AllMessages:   t.AllMessages,
		ErrorMessages: t.ErrorMessages,
	}
}

// HandleGetTask returns one task's state (GET /api/pim/tasks/{id}).
func (h *PIMHandlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := requireAuth(w, r); !ok {
		return
	}

	id := r.PathValue("id")
	t, ok := h.facade.GetTask(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// HandleGetTasks returns every tracked task (GET /api/pim/tasks).
func (h *PIMHandlers) HandleGetTasks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := requireAuth(w, r); !ok {
		return
	}

	all := h.facade.GetAllTasks()
	out := make([]taskResponse, 0, len(all))
	for _, t := range all {
		out = append(out, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": out})
}

// facadeSubscriber adapts a Facade to wsstream.Subscriber, flattening
// *task.Task down to the snapshot the websocket bridge pushes.
type facadeSubscriber struct {
	facade *pim.Facade
}

func (s facadeSubscriber) Subscribe(taskID string) <-chan string {
	return s.facade.Subscribe(taskID)
}

func (s facadeSubscriber) GetTask(taskID string) (wsstream.TaskSnapshot, bool) {
	t, ok := s.facade.GetTask(taskID)
	if !ok {
		return wsstream.TaskSnapshot{}, false
	}
	return wsstream.TaskSnapshot{
		Status:   string(t.Status),
		Progress: t.Progress,
		Message:  t.Message,
	}, true
}

// HandleTaskStream upgrades GET /ws/pim/tasks/{id} to a websocket that
// streams the task's progress until it reaches a terminal state.
func (h *PIMHandlers) HandleTaskStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAuth(w, r); !ok {
		return
	}
	id := r.PathValue("id")
	wsstream.HandleTaskStream(facadeSubscriber{facade: h.facade}, id, w, r)
}

type releaseResponse struct {
	TagName     string `json:"tag_name"`
	Version     string `json:"version"`
	DownloadURL string `json:"download_url"`
	FileName    string `json:"file_name"`
	Prerelease  bool   `json:"prerelease"`
	Size        int64  `json:"size"`
}

type pluginResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Authors      []string          `json:"authors"`
	Link         string            `json:"link"`
	Dependencies map[string]string `json:"dependencies"`
	Releases     []releaseResponse `json:"releases"`
}

func toPluginResponse(p *model.PluginData) pluginResponse {
	deps := make(map[string]string, len(p.Dependencies))
	for id, req := range p.Dependencies {
		deps[id] = req.String()
	}
	releases := make([]releaseResponse, 0, len(p.Releases))
	for _, rel := range p.Releases {
		releases = append(releases, releaseResponse{
			TagName:     rel.TagName,
			Version:     rel.Version().String(),
			DownloadURL: rel.DownloadURL,
			FileName:    rel.FileName,
			Prerelease:  rel.Prerelease,
			Size:        rel.Size,
		})
	}
	return pluginResponse{
		ID:           p.ID,
		Name:         p.Name,
		Version:      p.Version,
		Authors:      p.Authors,
		Link:         p.Link,
		Dependencies: deps,
		Releases:     releases,
	}
}

// HandleGetCatalogue returns the catalogue for a repo_url (the official
// catalogue if omitted) as a flattened plugin list plus its source_url,
// honoring an ignore_ttl=1 override
// (GET /api/pim/catalogue).
func (h *PIMHandlers) HandleGetCatalogue(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := requireAuth(w, r); !ok {
		return
	}

	repoURL := r.URL.Query().Get("repo_url")
	ignoreTTL, _ := strconv.ParseBool(r.URL.Query().Get("ignore_ttl"))

	reg, err := h.facade.GetCataMeta(r.Context(), repoURL, ignoreTTL)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "failed to fetch catalogue: "+err.Error())
		return
	}

	plugins := reg.List()
	out := make([]pluginResponse, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, toPluginResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"source_url": reg.SourceURL, "plugins": out})
}

// HandleGetPlugins returns the official catalogue's plugin list, optionally
// filtered by a keyword (GET /api/pim/plugins?q=).
func (h *PIMHandlers) HandleGetPlugins(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := requireAuth(w, r); !ok {
		return
	}

	reg, err := h.facade.GetCataMeta(r.Context(), "", false)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "failed to fetch catalogue: "+err.Error())
		return
	}

	var plugins []*model.PluginData
	if q := r.URL.Query().Get("q"); q != "" {
		plugins = reg.Filter(q)
	} else {
		plugins = reg.List()
	}

	out := make([]pluginResponse, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, toPluginResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plugins": out})
}
