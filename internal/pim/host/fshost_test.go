package host

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTestArchive(t *testing.T, dir, fileName, id, version string, deps map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, fileName)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("mcdreforged.plugin.json")
	if err != nil {
		t.Fatalf("create manifest entry: %v", err)
	}
	manifest := archiveManifest{ID: id, Version: version, Dependencies: deps}
	data, _ := json.Marshal(manifest)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return path
}

func TestFSHostLoadAndUnloadMcdrArchive(t *testing.T) {
	dir := t.TempDir()
	h, err := NewFSHost(dir, t.TempDir(), "2.13.0", "3.11.0")
	if err != nil {
		t.Fatalf("NewFSHost: %v", err)
	}
	ctx := context.Background()

	path := writeTestArchive(t, dir, "demo.mcdr", "demo_plugin", "1.0.0", map[string]string{"mcdreforged": ">=2.0.0"})

	if err := h.LoadPlugin(ctx, path); err != nil {
		t.Fatalf("LoadPlugin: %v", err)
	}

	ids, err := h.ListLoadedPluginIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "demo_plugin" {
		t.Fatalf("ListLoadedPluginIDs = %v, %v", ids, err)
	}

	meta, ok, err := h.GetPluginMetadata(ctx, "demo_plugin")
	if err != nil || !ok || meta.Version != "1.0.0" {
		t.Fatalf("GetPluginMetadata = %+v, %v, %v", meta, ok, err)
	}

	if err := h.UnloadPlugin(ctx, "demo_plugin"); err != nil {
		t.Fatalf("UnloadPlugin: %v", err)
	}
	if _, ok, _ := h.GetPluginMetadata(ctx, "demo_plugin"); ok {
		t.Error("expected plugin to be gone after unload")
	}
}

func TestFSHostListUnloadedPluginFiles(t *testing.T) {
	dir := t.TempDir()
	h, err := NewFSHost(dir, t.TempDir(), "2.13.0", "3.11.0")
	if err != nil {
		t.Fatalf("NewFSHost: %v", err)
	}
	ctx := context.Background()

	writeTestArchive(t, dir, "unloaded.mcdr", "unloaded_plugin", "1.0.0", nil)
	if err := os.WriteFile(filepath.Join(dir, "scriptplugin.py"), []byte("# a bare script plugin\n"), 0o644); err != nil {
		t.Fatalf("write py plugin: %v", err)
	}

	files, err := h.ListUnloadedPluginFiles(ctx)
	if err != nil {
		t.Fatalf("ListUnloadedPluginFiles: %v", err)
	}
	ids := map[string]bool{}
	for _, f := range files {
		ids[f.PluginID] = true
	}
	if !ids["unloaded_plugin"] {
		t.Error("expected unloaded_plugin (detected from .mcdr manifest) in the unloaded list")
	}
	if !ids["scriptplugin"] {
		t.Error("expected scriptplugin (detected from .py file stem) in the unloaded list")
	}
}

func TestFSHostUnloadUnknownPluginErrors(t *testing.T) {
	h, err := NewFSHost(t.TempDir(), t.TempDir(), "2.13.0", "3.11.0")
	if err != nil {
		t.Fatalf("NewFSHost: %v", err)
	}
	if err := h.UnloadPlugin(context.Background(), "nope"); err == nil {
		t.Error("expected an error unloading a plugin that was never loaded")
	}
}
