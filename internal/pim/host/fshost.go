package host

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// manifestNames lists the plugin archive manifest filenames accepted for
// compatibility.
var manifestNames = []string{"mcdreforged.plugin.json", "mcdr_plugin.json"}

type archiveManifest struct {
	ID           string            `json:"id"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// FSHost is a reference Host implementation backed by the plugin directory
// on disk plus a mutex-guarded in-memory "loaded set". The loaded set is
// not persisted: each FSHost starts with nothing loaded. It is not a real
// MCDR server: loading a
// plugin means recording it (and its declared metadata) as loaded; it is
// meant for pimctl and for tests, and as the seam a real in-process MCDR
// bridge would implement instead.
type FSHost struct {
	pluginDir string
	cacheDir  string

	runtimeVersion     string
	interpreterVersion string

	mu     sync.RWMutex
	loaded map[string]LoadedPluginMeta
	paths  map[string]string // plugin id -> on-disk file path
}

// NewFSHost builds an FSHost rooted at pluginDir/cacheDir. Both directories
// are created if missing.
func NewFSHost(pluginDir, cacheDir, runtimeVersion, interpreterVersion string) (*FSHost, error) {
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		return nil, fmt.Errorf("host: create plugin dir: %w", err)
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("host: create cache dir: %w", err)
	}
	return &FSHost{
		pluginDir:          pluginDir,
		cacheDir:           cacheDir,
		runtimeVersion:     runtimeVersion,
		interpreterVersion: interpreterVersion,
		loaded:             map[string]LoadedPluginMeta{},
		paths:              map[string]string{},
	}, nil
}

func (h *FSHost) ListLoadedPluginIDs(ctx context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.loaded))
	for id := range h.loaded {
		out = append(out, id)
	}
	return out, nil
}

func (h *FSHost) GetPluginMetadata(ctx context.Context, id string) (LoadedPluginMeta, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	meta, ok := h.loaded[id]
	return meta, ok, nil
}

func (h *FSHost) GetPluginFilePath(ctx context.Context, id string) (string, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.paths[id]
	return p, ok, nil
}

// ListUnloadedPluginFiles scans the plugin directory for files that aren't
// currently tracked as loaded, detecting their id the way
// detect_unloaded_plugin_id does in the original PIM helper: a *.py file's
// stem is its id; a *.mcdr zip's id comes from its bundled manifest.
func (h *FSHost) ListUnloadedPluginFiles(ctx context.Context) ([]UnloadedFile, error) {
	entries, err := os.ReadDir(h.pluginDir)
	if err != nil {
		return nil, fmt.Errorf("host: list plugin dir: %w", err)
	}

	h.mu.RLock()
	loadedPaths := make(map[string]bool, len(h.paths))
	for _, p := range h.paths {
		loadedPaths[p] = true
	}
	h.mu.RUnlock()

	var out []UnloadedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		full := filepath.Join(h.pluginDir, e.Name())
		if loadedPaths[full] {
			continue
		}

		switch {
		case strings.HasSuffix(e.Name(), ".py"):
			id := strings.TrimSuffix(e.Name(), ".py")
			out = append(out, UnloadedFile{PluginID: id, Path: full})
		case strings.HasSuffix(e.Name(), ".mcdr"):
			id, err := readArchiveID(full)
			if err != nil {
				continue // unreadable archive: skip, not fatal
			}
			out = append(out, UnloadedFile{PluginID: id, Path: full})
		}
	}
	return out, nil
}

func readArchiveID(path string) (string, error) {
	m, err := readArchiveManifest(path)
	if err != nil {
		return "", err
	}
	if m.ID == "" {
		return "", fmt.Errorf("host: archive %s manifest has no id", path)
	}
	return m.ID, nil
}

func readArchiveManifest(path string) (archiveManifest, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return archiveManifest{}, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		name := f.Name
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		if !containsAny(name, manifestNames) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return archiveManifest{}, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return archiveManifest{}, err
		}
		var m archiveManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return archiveManifest{}, err
		}
		return m, nil
	}
	return archiveManifest{}, fmt.Errorf("host: no recognized manifest in %s", path)
}

func containsAny(name string, candidates []string) bool {
	for _, c := range candidates {
		if name == c {
			return true
		}
	}
	return false
}

// LoadPlugin reads idOrPath's manifest (if it is a path to a freshly
// downloaded archive or .py file) and records it as loaded. If idOrPath is
// a bare id already known from a previous load, it is reloaded as-is.
func (h *FSHost) LoadPlugin(ctx context.Context, idOrPath string) error {
	path := idOrPath
	id := idOrPath

	if strings.HasSuffix(idOrPath, ".mcdr") {
		m, err := readArchiveManifest(idOrPath)
		if err != nil {
			return fmt.Errorf("host: load %s: %w", idOrPath, err)
		}
		id = m.ID
		h.mu.Lock()
		h.loaded[id] = LoadedPluginMeta{Version: m.Version, Dependencies: m.Dependencies}
		h.paths[id] = path
		h.mu.Unlock()
		return nil
	}
	if strings.HasSuffix(idOrPath, ".py") {
		id = strings.TrimSuffix(filepath.Base(idOrPath), ".py")
		h.mu.Lock()
		h.loaded[id] = LoadedPluginMeta{}
		h.paths[id] = path
		h.mu.Unlock()
		return nil
	}

	// Reload by bare id: keep whatever metadata/path is already on record.
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.loaded[id]; !ok {
		return fmt.Errorf("host: cannot reload unknown plugin id %q without a file path", id)
	}
	return nil
}

// UnloadPlugin removes id from the loaded set. The file on disk is
// untouched: file deletion is the installer's responsibility (delete before
// asking the host to unload, to avoid an auto-rescan race — FSHost's unload
// is the "ask the host" half of that sequence).
func (h *FSHost) UnloadPlugin(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.loaded[id]; !ok {
		return fmt.Errorf("host: plugin %q is not loaded", id)
	}
	delete(h.loaded, id)
	delete(h.paths, id)
	return nil
}

func (h *FSHost) GetPluginDirectory() string { return h.pluginDir }
func (h *FSHost) GetCacheDirectory() string  { return h.cacheDir }

func (h *FSHost) HostRuntimeVersion() string { return h.runtimeVersion }
func (h *FSHost) InterpreterVersion() string { return h.interpreterVersion }
