// Package host declares the narrow Host capability the PIM core consumes
// and provides a filesystem-backed reference implementation suitable for
// tests and for a standalone pimctl binary that doesn't sit inside a real
// MCDR-compatible server process.
package host

import "context"

// LoadedPluginMeta is what the Host reports about a currently loaded plugin.
type LoadedPluginMeta struct {
	Version      string
	Dependencies map[string]string // dependency id -> requirement string
}

// UnloadedFile describes an on-disk plugin file the Host has not (yet)
// loaded, discovered by directory scan: a bare *.py file (stem is the id)
// or a *.mcdr zip archive (id read from its bundled manifest).
type UnloadedFile struct {
	PluginID string
	Path     string
}

// Host is the capability the PIM core is allowed to depend on. Everything
// else about the surrounding admin backend (auth, sessions, the SPA, the
// log tailer, server start/stop, the config editor) is out of scope and
// reachable only through this interface.
type Host interface {
	ListLoadedPluginIDs(ctx context.Context) ([]string, error)
	GetPluginMetadata(ctx context.Context, id string) (LoadedPluginMeta, bool, error)
	GetPluginFilePath(ctx context.Context, id string) (string, bool, error)
	ListUnloadedPluginFiles(ctx context.Context) ([]UnloadedFile, error)

	LoadPlugin(ctx context.Context, idOrPath string) error
	UnloadPlugin(ctx context.Context, id string) error

	GetPluginDirectory() string
	GetCacheDirectory() string

	HostRuntimeVersion() string
	InterpreterVersion() string
}
