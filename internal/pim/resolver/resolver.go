// Package resolver implements the PIM Dependency Resolver: given a target
// plugin's declared dependencies (plus any merged from a
// freshly downloaded archive manifest), decide what's missing, outdated, an
// environment mismatch, or a python requirement — never install anything.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opskernel/pimhub/internal/pim/host"
	"github.com/opskernel/pimhub/internal/pim/model"
	"github.com/opskernel/pimhub/internal/pim/version"
)

// Result is the resolver's decision for one plugin's dependency set.
type Result struct {
	MissingPlugins     []string          // dependency ids not currently loaded
	OutdatedPlugins    map[string]string // dependency id -> requirement string it fails
	PythonRequirements []string
	EnvironmentIssues  []string
}

// ArchiveManifest is the subset of a plugin archive's bundled manifest the
// resolver cares about, merged into the registry's declared dependencies.
type ArchiveManifest struct {
	Dependencies       map[string]string
	PythonRequirements []string
}

// Resolver decides missing/outdated/environment/python-requirement state
// for a plugin's dependencies against a Host's currently loaded set.
type Resolver struct {
	host host.Host
}

// New builds a Resolver consulting h for what's currently loaded.
func New(h host.Host) *Resolver {
	return &Resolver{host: h}
}

// Resolve computes the Result for target, whose declared dependencies come
// from meta (target's MetaRegistry entry) merged with archive (optional,
// from a freshly downloaded file). hostRuntimeID and interpreterID name the
// two environment identifiers that route to environment checks instead of
// the plugin-dependency path.
func (r *Resolver) Resolve(ctx context.Context, target *model.PluginData, archive *ArchiveManifest, hostRuntimeID, interpreterID string) (Result, error) {
	res := Result{OutdatedPlugins: map[string]string{}}

	deps := mergeDependencies(target, archive)
	if archive != nil {
		res.PythonRequirements = append(res.PythonRequirements, archive.PythonRequirements...)
	}

	loadedIDs, err := r.host.ListLoadedPluginIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolver: list loaded plugins: %w", err)
	}

	loadedSet := make(map[string]bool, len(loadedIDs))
	for _, id := range loadedIDs {
		loadedSet[normalize(id)] = true
	}

	seen := map[string]bool{}
	for _, dep := range deps {
		key := normalize(dep.id)
		if seen[key] {
			continue
		}
		seen[key] = true

		if key == normalize(hostRuntimeID) {
			r.checkEnvironment(ctx, &res, dep, r.host.HostRuntimeVersion())
			continue
		}
		if key == normalize(interpreterID) {
			r.checkEnvironment(ctx, &res, dep, r.host.InterpreterVersion())
			continue
		}

		if !loadedSet[key] {
			res.MissingPlugins = append(res.MissingPlugins, dep.id)
			continue
		}

		meta, ok, err := r.host.GetPluginMetadata(ctx, dep.id)
		if err != nil {
			return Result{}, fmt.Errorf("resolver: get metadata for %s: %w", dep.id, err)
		}
		if !ok {
			res.MissingPlugins = append(res.MissingPlugins, dep.id)
			continue
		}

		req := version.ParseRequirement(dep.requirement)
		if !req.Accepts(version.Parse(meta.Version)) {
			res.OutdatedPlugins[dep.id] = dep.requirement
		}
	}

	return res, nil
}

func (r *Resolver) checkEnvironment(ctx context.Context, res *Result, dep dependency, actual string) {
	req := version.ParseRequirement(dep.requirement)
	if !req.Accepts(version.Parse(actual)) {
		res.EnvironmentIssues = append(res.EnvironmentIssues,
			fmt.Sprintf("%s requires %s but running %s", dep.id, dep.requirement, actual))
	}
}

type dependency struct {
	id          string
	requirement string
}

// mergeDependencies combines the MetaRegistry-declared dependencies with an
// archive's, in declared order (registry first, then archive-only
// additions). mergeDependencies sorts each source's ids before appending:
// Dependencies is a Go map and carries no declared order, so plain key
// order stands in for declared order.
func mergeDependencies(target *model.PluginData, archive *ArchiveManifest) []dependency {
	var out []dependency
	seen := map[string]bool{}

	if target != nil {
		ids := make([]string, 0, len(target.Dependencies))
		for id := range target.Dependencies {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, dependency{id: id, requirement: target.Dependencies[id].String()})
			seen[normalize(id)] = true
		}
	}
	if archive != nil {
		ids := make([]string, 0, len(archive.Dependencies))
		for id := range archive.Dependencies {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if seen[normalize(id)] {
				continue
			}
			out = append(out, dependency{id: id, requirement: archive.Dependencies[id]})
			seen[normalize(id)] = true
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(s)
}
