package resolver

import (
	"context"
	"testing"

	"github.com/opskernel/pimhub/internal/pim/host"
	"github.com/opskernel/pimhub/internal/pim/model"
	"github.com/opskernel/pimhub/internal/pim/version"
)

type fakeHost struct {
	loaded map[string]host.LoadedPluginMeta
	rt     string
	interp string
}

func newFakeHost() *fakeHost {
	return &fakeHost{loaded: map[string]host.LoadedPluginMeta{}, rt: "2.13.0", interp: "3.11.0"}
}

func (f *fakeHost) ListLoadedPluginIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.loaded))
	for id := range f.loaded {
		ids = append(ids, id)
	}
	return ids, nil
}
func (f *fakeHost) GetPluginMetadata(ctx context.Context, id string) (host.LoadedPluginMeta, bool, error) {
	m, ok := f.loaded[id]
	return m, ok, nil
}
func (f *fakeHost) GetPluginFilePath(ctx context.Context, id string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeHost) ListUnloadedPluginFiles(ctx context.Context) ([]host.UnloadedFile, error) {
	return nil, nil
}
func (f *fakeHost) LoadPlugin(ctx context.Context, idOrPath string) error   { return nil }
func (f *fakeHost) UnloadPlugin(ctx context.Context, id string) error      { return nil }
func (f *fakeHost) GetPluginDirectory() string                             { return "" }
func (f *fakeHost) GetCacheDirectory() string                              { return "" }
func (f *fakeHost) HostRuntimeVersion() string                             { return f.rt }
func (f *fakeHost) InterpreterVersion() string                             { return f.interp }

func newTargetWithDeps(deps map[string]string) *model.PluginData {
	p := model.NewPluginData("demo_plugin")
	p.Dependencies = map[string]version.Requirement{}
	for id, req := range deps {
		p.Dependencies[id] = version.ParseRequirement(req)
	}
	return p
}

func TestResolveMissingPlugin(t *testing.T) {
	h := newFakeHost()
	r := New(h)
	target := newTargetWithDeps(map[string]string{"dep_a": ">=1.0.0"})

	res, err := r.Resolve(context.Background(), target, nil, "mcdreforged", "python")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.MissingPlugins) != 1 || res.MissingPlugins[0] != "dep_a" {
		t.Fatalf("MissingPlugins = %v", res.MissingPlugins)
	}
	if len(res.OutdatedPlugins) != 0 {
		t.Errorf("OutdatedPlugins = %v, want empty", res.OutdatedPlugins)
	}
}

func TestResolveOutdatedPlugin(t *testing.T) {
	h := newFakeHost()
	h.loaded["dep_a"] = host.LoadedPluginMeta{Version: "0.5.0"}
	r := New(h)
	target := newTargetWithDeps(map[string]string{"dep_a": ">=1.0.0"})

	res, err := r.Resolve(context.Background(), target, nil, "mcdreforged", "python")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.MissingPlugins) != 0 {
		t.Errorf("MissingPlugins = %v, want empty", res.MissingPlugins)
	}
	if got, ok := res.OutdatedPlugins["dep_a"]; !ok || got != ">=1.0.0" {
		t.Errorf("OutdatedPlugins[dep_a] = %q, ok=%v", got, ok)
	}
}

func TestResolveSatisfiedDependencyIsNeitherMissingNorOutdated(t *testing.T) {
	h := newFakeHost()
	h.loaded["dep_a"] = host.LoadedPluginMeta{Version: "1.2.0"}
	r := New(h)
	target := newTargetWithDeps(map[string]string{"dep_a": ">=1.0.0"})

	res, err := r.Resolve(context.Background(), target, nil, "mcdreforged", "python")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.MissingPlugins) != 0 || len(res.OutdatedPlugins) != 0 {
		t.Errorf("expected no missing/outdated, got %v / %v", res.MissingPlugins, res.OutdatedPlugins)
	}
}

func TestResolveEnvironmentIssueRoutesSeparately(t *testing.T) {
	h := newFakeHost()
	h.rt = "2.0.0"
	r := New(h)
	target := newTargetWithDeps(map[string]string{"mcdreforged": ">=2.5.0"})

	res, err := r.Resolve(context.Background(), target, nil, "mcdreforged", "python")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.EnvironmentIssues) != 1 {
		t.Fatalf("EnvironmentIssues = %v", res.EnvironmentIssues)
	}
	if len(res.MissingPlugins) != 0 || len(res.OutdatedPlugins) != 0 {
		t.Error("environment identifiers must never appear as missing or outdated plugins")
	}
}

func TestResolveMergesArchiveDependenciesWithoutDuplicates(t *testing.T) {
	h := newFakeHost()
	r := New(h)
	target := newTargetWithDeps(map[string]string{"dep_a": ">=1.0.0"})
	archive := &ArchiveManifest{
		Dependencies:       map[string]string{"dep_a": ">=1.0.0", "dep_b": ">=2.0.0"},
		PythonRequirements: []string{"requests>=2.0"},
	}

	res, err := r.Resolve(context.Background(), target, archive, "mcdreforged", "python")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.MissingPlugins) != 2 {
		t.Fatalf("MissingPlugins = %v, want dep_a and dep_b with no duplicate", res.MissingPlugins)
	}
	if len(res.PythonRequirements) != 1 || res.PythonRequirements[0] != "requests>=2.0" {
		t.Errorf("PythonRequirements = %v", res.PythonRequirements)
	}
}

func TestResolveMissingAndOutdatedAreDisjoint(t *testing.T) {
	h := newFakeHost()
	h.loaded["dep_b"] = host.LoadedPluginMeta{Version: "0.1.0"}
	r := New(h)
	target := newTargetWithDeps(map[string]string{"dep_a": ">=1.0.0", "dep_b": ">=1.0.0"})

	res, err := r.Resolve(context.Background(), target, nil, "mcdreforged", "python")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, id := range res.MissingPlugins {
		if _, ok := res.OutdatedPlugins[id]; ok {
			t.Errorf("%s present in both missing and outdated", id)
		}
	}
}
