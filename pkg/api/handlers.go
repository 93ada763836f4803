package api

import (
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/httputil"
	"github.com/platinummonkey/fleet/pkg/plugins"
)

// InstallResponse is returned by a successful install.
type InstallResponse struct {
	Plugin   *plugins.InstalledPlugin `json:"plugin"`
	Warnings []plugins.Warning        `json:"warnings,omitempty"`
}

// MemoryResponse describes heap usage as seen by the memory monitor.
type MemoryResponse struct {
	Current  cache.MemorySample   `json:"current"`
	Trend    cache.Trend          `json:"trend"`
	Critical bool                 `json:"critical"`
	Workers  int                  `json:"workers"`
	History  []cache.MemorySample `json:"history,omitempty"`
}

// installPlugin installs the raw package archive in the request body.
func (s *Server) installPlugin(w http.ResponseWriter, r *http.Request) {
	source := r.Header.Get("X-Source-Label")
	if source == "" {
		source = httputil.QueryString(r, "source", "api")
	}

	archive, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize))
	if err != nil {
		s.rejected()
		writeError(w, r, err)
		return
	}
	if len(archive) == 0 {
		s.rejected()
		httputil.WriteBadRequest(w, "request body must contain a package archive")
		return
	}

	plugin, err := s.loader.Load(r.Context(), archive, source)
	if err != nil {
		s.rejected()
		s.logger.WithField("source", source).WithError(err).Warn("Install failed")
		writeError(w, r, err)
		return
	}
	s.installedChanged()

	plugin.Package = nil
	_ = httputil.WriteCreated(w, InstallResponse{Plugin: plugin, Warnings: plugin.Warnings})
}

// listPlugins returns every installed plugin.
func (s *Server) listPlugins(w http.ResponseWriter, r *http.Request) {
	list := s.manager.Plugins()
	for _, p := range list {
		p.Package = nil
	}
	_ = httputil.WriteSuccess(w, list)
}

// getPlugin returns one plugin including its package summary.
func (s *Server) getPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}
	plugin, found := s.manager.Plugin(id)
	if !found {
		writeError(w, r, plugins.ErrNotInstalled)
		return
	}
	_ = httputil.WriteSuccess(w, plugin)
}

// uninstallPlugin unloads a plugin and removes its stored package.
func (s *Server) uninstallPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}
	if err := s.loader.Uninstall(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.installedChanged()
	httputil.WriteNoContent(w)
}

// reloadPlugin stops a plugin's host so its next command loads it fresh.
func (s *Server) reloadPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}
	if err := s.manager.Reload(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	plugin, found := s.manager.Plugin(id)
	if !found {
		writeError(w, r, plugins.ErrNotInstalled)
		return
	}
	_ = httputil.WriteSuccess(w, plugin)
}

// listCommands returns the launcher's command list.
func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, s.manager.GetAvailableCommands())
}

// executeCommand runs a command with the JSON body as its arguments.
func (s *Server) executeCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}
	command, ok := httputil.PathVar(w, r, "command")
	if !ok {
		return
	}
	args, err := httputil.ReadRawJSON(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := s.manager.Execute(r.Context(), plugins.Invocation{
		PluginID:      id,
		Command:       command,
		Mode:          httputil.QueryString(r, "mode", ""),
		Args:          args,
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, result)
}

// getView returns the cached result of the last view command run.
func (s *Server) getView(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}
	command, ok := httputil.PathVar(w, r, "command")
	if !ok {
		return
	}
	result, found := s.manager.LastView(id, command)
	if !found {
		httputil.WriteNotFoundError(w, "no cached view for "+id+"/"+command)
		return
	}
	_ = httputil.WriteSuccess(w, result)
}

// dispatchEvent forwards a UI event to a mounted root.
func (s *Server) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}
	root, ok := httputil.PathVar(w, r, "root")
	if !ok {
		return
	}
	var ev plugins.ViewEvent
	if !httputil.DecodeJSON(w, r, &ev) {
		return
	}
	if ev.HandlerID == "" && ev.Event == "" {
		httputil.WriteBadRequest(w, "handlerId or event is required")
		return
	}

	if err := s.manager.DispatchEvent(r.Context(), id, root, ev); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// getAsset serves a packaged asset.
func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}
	name, ok := httputil.PathVar(w, r, "path")
	if !ok {
		return
	}
	data, found := s.manager.Asset(id, name)
	if !found {
		httputil.WriteNotFoundError(w, "asset not found: "+name)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// cacheStats reports every runtime cache.
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, s.manager.Caches().Stats())
}

// memory takes a fresh memory sample. ?history=N includes the last N
// samples.
func (s *Server) memory(w http.ResponseWriter, r *http.Request) {
	n, err := httputil.QueryInt(r, "history", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	monitor := s.manager.Monitor()
	resp := MemoryResponse{
		Current:  monitor.Sample(),
		Trend:    monitor.Trend(),
		Critical: monitor.IsCritical(),
		Workers:  s.manager.ActiveWorkers(),
	}
	if n > 0 {
		history := monitor.History()
		if len(history) > n {
			history = history[len(history)-n:]
		}
		resp.History = history
	}
	_ = httputil.WriteSuccess(w, resp)
}

func (s *Server) rejected() {
	if s.metrics != nil {
		s.metrics.PackageRejected("api")
	}
}

func (s *Server) installedChanged() {
	if s.metrics != nil {
		s.metrics.SetInstalled(len(s.manager.Plugins()))
	}
}
