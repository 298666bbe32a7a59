package pim

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opskernel/pimhub/internal/config"
	"github.com/opskernel/pimhub/internal/pim/host"
	"github.com/opskernel/pimhub/internal/pim/task"
)

func buildArchive(t *testing.T, id, version string, deps map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("mcdreforged.plugin.json")
	if err != nil {
		t.Fatalf("create manifest entry: %v", err)
	}
	manifest := map[string]any{"id": id, "version": version, "dependencies": deps}
	data, _ := json.Marshal(manifest)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func structuredCatalogue(id, releaseTag, downloadURL, fileName string) []byte {
	type asset struct {
		BrowserDownloadURL string `json:"browser_download_url"`
		Name               string `json:"name"`
	}
	type release struct {
		TagName string `json:"tag_name"`
		Asset   asset  `json:"asset"`
	}
	type meta struct {
		Name string `json:"name"`
	}
	type plugin struct {
		Meta    meta `json:"meta"`
		Release struct {
			Releases []release `json:"releases"`
		} `json:"release"`
	}
	doc := struct {
		Plugins map[string]plugin `json:"plugins"`
	}{Plugins: map[string]plugin{}}

	entry := plugin{Meta: meta{Name: id}}
	entry.Release.Releases = []release{{TagName: releaseTag, Asset: asset{BrowserDownloadURL: downloadURL, Name: fileName}}}
	doc.Plugins[id] = entry

	data, _ := json.Marshal(doc)
	return data
}

func newTestFacade(t *testing.T, selfID string) (*Facade, *httptest.Server, string) {
	t.Helper()
	pluginDir := t.TempDir()
	cacheDir := t.TempDir()

	h, err := host.NewFSHost(pluginDir, cacheDir, "2.13.0", "3.11.0")
	if err != nil {
		t.Fatalf("NewFSHost: %v", err)
	}

	archive := buildArchive(t, "p1", "1.0.0", nil)
	mux := http.NewServeMux()
	var catalogueURL string
	mux.HandleFunc("/catalogue.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write(structuredCatalogue("p1", "v1.0.0", catalogueURL+"/p1.mcdr", "p1.mcdr"))
	})
	mux.HandleFunc("/p1.mcdr", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	catalogueURL = srv.URL

	cfg := &config.Config{
		PluginDir:       pluginDir,
		CacheDir:        cacheDir,
		CatalogueURL:    srv.URL + "/catalogue.json",
		CatalogueTTL:    time.Hour,
		FailureCooldown: 15 * time.Minute,
		FetchTimeout:    5 * time.Second,
		DownloadTimeout: 5 * time.Second,
		TaskRetention:   time.Minute,
		SelfID:          selfID,
	}
	return New(h, cfg, nil), srv, pluginDir
}

func waitFacadeTerminal(t *testing.T, f *Facade, taskID string) *task.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tk, ok := f.GetTask(taskID)
		if ok && tk.Status != task.StatusRunning {
			return tk
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state in time", taskID)
	return nil
}

func TestFacadeInstallEndToEnd(t *testing.T) {
	f, _, pluginDir := newTestFacade(t, "guguwebui")
	ctx := context.Background()

	taskID, err := f.Install(ctx, "p1", "", "")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	tk := waitFacadeTerminal(t, f, taskID)
	if tk.Status != task.StatusCompleted {
		t.Fatalf("status = %v, messages = %v", tk.Status, tk.AllMessages)
	}
	if _, err := os.Stat(filepath.Join(pluginDir, "p1.mcdr")); err != nil {
		t.Errorf("expected downloaded file on disk: %v", err)
	}
}

func TestFacadeRejectsSelfInstall(t *testing.T) {
	f, _, _ := newTestFacade(t, "guguwebui")
	ctx := context.Background()

	if _, err := f.Install(ctx, "guguwebui", "", ""); err == nil {
		t.Fatal("expected Install to reject the self id")
	}
	if _, err := f.Uninstall(ctx, "guguwebui"); err == nil {
		t.Fatal("expected Uninstall to reject the self id")
	}
}

func TestFacadeListPluginsAndGetCataMeta(t *testing.T) {
	f, _, _ := newTestFacade(t, "guguwebui")
	ctx := context.Background()

	plugins, err := f.ListPlugins(ctx)
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if len(plugins) != 1 || plugins[0].ID != "p1" {
		t.Fatalf("ListPlugins = %+v, want one plugin p1", plugins)
	}

	reg, err := f.GetCataMeta(ctx, "", false)
	if err != nil {
		t.Fatalf("GetCataMeta: %v", err)
	}
	if _, ok := reg.Get("p1"); !ok {
		t.Fatal("GetCataMeta registry missing p1")
	}
}

func TestFacadeSubscribeReceivesProgress(t *testing.T) {
	pluginDir := t.TempDir()
	cacheDir := t.TempDir()

	h, err := host.NewFSHost(pluginDir, cacheDir, "2.13.0", "3.11.0")
	if err != nil {
		t.Fatalf("NewFSHost: %v", err)
	}

	// p1 declares a dependency the catalogue has never heard of, so the
	// installer logs a "failed to install dependency" warning partway
	// through — a message Subscribe should observe before the task
	// completes.
	archive := buildArchive(t, "p1", "1.0.0", map[string]string{"missingdep": ">=1.0.0"})
	mux := http.NewServeMux()
	var catalogueURL string
	mux.HandleFunc("/catalogue.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write(structuredCatalogue("p1", "v1.0.0", catalogueURL+"/p1.mcdr", "p1.mcdr"))
	})
	mux.HandleFunc("/p1.mcdr", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	catalogueURL = srv.URL

	cfg := &config.Config{
		PluginDir:       pluginDir,
		CacheDir:        cacheDir,
		CatalogueURL:    srv.URL + "/catalogue.json",
		CatalogueTTL:    time.Hour,
		FailureCooldown: 15 * time.Minute,
		FetchTimeout:    5 * time.Second,
		DownloadTimeout: 5 * time.Second,
		TaskRetention:   time.Minute,
		SelfID:          "guguwebui",
	}
	f := New(h, cfg, nil)
	ctx := context.Background()

	taskID, err := f.Install(ctx, "p1", "", "")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	ch := f.Subscribe(taskID)

	received := false
	deadline := time.After(2 * time.Second)
	for !received {
		select {
		case msg := <-ch:
			if msg != "" {
				received = true
			}
		case <-deadline:
			t.Fatal("expected at least one message on the subscribed channel")
		}
	}

	tk := waitFacadeTerminal(t, f, taskID)
	if tk.Status != task.StatusCompleted {
		t.Fatalf("status = %v, messages = %v", tk.Status, tk.AllMessages)
	}
}
