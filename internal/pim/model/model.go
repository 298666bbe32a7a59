// Package model holds the typed representation of catalogue entries and
// releases produced by the registry parser and consumed by the resolver,
// installer, and HTTP bridge.
package model

import (
	"strings"

	"github.com/opskernel/pimhub/internal/pim/version"
)

// ReleaseData is one versioned, downloadable artifact of a plugin.
type ReleaseData struct {
	Name          string
	TagName       string
	CreatedAt     string
	Description   string
	Prerelease    bool
	URL           string
	DownloadURL   string
	DownloadCount int
	Size          int64
	FileName      string
}

// Version derives the release's version from TagName, stripping a leading v.
func (r ReleaseData) Version() version.Version {
	return version.Parse(strings.TrimPrefix(strings.TrimPrefix(r.TagName, "v"), "V"))
}

// PluginData is the typed representation of one catalogue entry.
type PluginData struct {
	ID                 string
	Name               string
	Version            string
	Description        map[string]string
	Authors            []string
	Link               string
	Dependencies       map[string]version.Requirement
	PythonRequirements []string
	Releases           []ReleaseData // ordered, newest first
	RepoOwner          string
	RepoName           string
}

// LatestRelease returns releases[0], or the zero value and false if the
// plugin has no releases.
func (p PluginData) LatestRelease() (ReleaseData, bool) {
	if len(p.Releases) == 0 {
		return ReleaseData{}, false
	}
	return p.Releases[0], true
}

// FindRelease locates a release by exact version match (stripped tag) or by
// raw tag name, mirroring the original PluginInstaller._find_release logic.
func (p PluginData) FindRelease(wantVersion string) (ReleaseData, bool) {
	if wantVersion == "" {
		return p.LatestRelease()
	}
	want := strings.TrimPrefix(strings.TrimPrefix(wantVersion, "v"), "V")
	for _, rel := range p.Releases {
		if rel.Version().String() == want || strings.TrimPrefix(rel.Version().String(), "v") == want {
			return rel, true
		}
		if rel.TagName == wantVersion {
			return rel, true
		}
	}
	return ReleaseData{}, false
}

// MatchesKeyword reports whether id, name, or any description value contains
// keyword case-insensitively.
func (p PluginData) MatchesKeyword(keyword string) bool {
	keyword = strings.ToLower(keyword)
	if strings.Contains(strings.ToLower(p.ID), keyword) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Name), keyword) {
		return true
	}
	for _, v := range p.Description {
		if strings.Contains(strings.ToLower(v), keyword) {
			return true
		}
	}
	return false
}

// deriveRepo extracts owner/name from a link pointing at a known hosting
// domain (currently GitHub), leaving both empty when the link doesn't match.
func deriveRepo(link string) (owner, name string) {
	link = strings.TrimSuffix(strings.TrimSpace(link), "/")
	const marker = "github.com/"
	idx := strings.Index(link, marker)
	if idx < 0 {
		return "", ""
	}
	rest := link[idx+len(marker):]
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// NewPluginData builds an empty PluginData for id; SetLink derives
// RepoOwner/RepoName from a link.
func NewPluginData(id string) *PluginData {
	return &PluginData{
		ID:           id,
		Description:  map[string]string{},
		Dependencies: map[string]version.Requirement{},
	}
}

// SetLink sets Link and re-derives RepoOwner/RepoName from it.
func (p *PluginData) SetLink(link string) {
	p.Link = link
	p.RepoOwner, p.RepoName = deriveRepo(link)
}

// MetaRegistry is an immutable-after-parse collection of plugins retrieved
// from a single catalogue source.
type MetaRegistry struct {
	SourceURL string
	Plugins   map[string]*PluginData
}

// Empty returns a MetaRegistry with no plugins, used as the degraded result
// when a fetch fails and no cache is available.
func Empty(sourceURL string) MetaRegistry {
	return MetaRegistry{SourceURL: sourceURL, Plugins: map[string]*PluginData{}}
}

// Get looks up a plugin by id (case-sensitive key).
func (m MetaRegistry) Get(id string) (*PluginData, bool) {
	p, ok := m.Plugins[id]
	return p, ok
}

// List enumerates all plugins in source order is not guaranteed (map); for
// deterministic iteration order callers should sort by ID themselves.
func (m MetaRegistry) List() []*PluginData {
	out := make([]*PluginData, 0, len(m.Plugins))
	for _, p := range m.Plugins {
		out = append(out, p)
	}
	return out
}

// Filter returns every plugin whose id, name, or description matches keyword.
func (m MetaRegistry) Filter(keyword string) []*PluginData {
	if keyword == "" {
		return m.List()
	}
	out := make([]*PluginData, 0)
	for _, p := range m.Plugins {
		if p.MatchesKeyword(keyword) {
			out = append(out, p)
		}
	}
	return out
}

// EqualsIgnoreCase compares two plugin/dependency identifiers the way
// dependency matching must: case-insensitively, centralizing the
// normalization instead of scattering raw string comparisons.
func EqualsIgnoreCase(a, b string) bool {
	return strings.EqualFold(a, b)
}
