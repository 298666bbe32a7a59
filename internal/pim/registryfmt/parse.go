// Package registryfmt normalizes the two catalogue JSON shapes the PIM
// registry accepts into a single model.MetaRegistry.
package registryfmt

import (
	"encoding/json"
	"fmt"

	"github.com/opskernel/pimhub/internal/pim/model"
	"github.com/opskernel/pimhub/internal/pim/version"
)

// Parse detects which of the two accepted shapes raw is and normalizes it
// into a MetaRegistry. Malformed individual entries are skipped rather than
// failing the whole parse; a completely unrecognizable payload is reported
// as an error.
func Parse(sourceURL string, raw []byte) (model.MetaRegistry, error) {
	reg := model.Empty(sourceURL)

	var flat []json.RawMessage
	if err := json.Unmarshal(raw, &flat); err == nil {
		parseFlat(&reg, flat)
		return reg, nil
	}

	var structured structuredDoc
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Plugins != nil {
		parseStructured(&reg, structured)
		return reg, nil
	}

	return reg, fmt.Errorf("registryfmt: payload from %s matches neither the flat-array nor the structured-object shape", sourceURL)
}

// ---- Flat array shape ----

type flatEntry struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     json.RawMessage   `json:"description"`
	Authors         json.RawMessage   `json:"authors"`
	RepositoryURL   string            `json:"repository_url"`
	LatestVersion   string            `json:"latest_version"`
	LastUpdateTime  string            `json:"last_update_time"`
	Downloads       int               `json:"downloads"`
	Dependencies    map[string]string `json:"dependencies"`
	Requirements    []string          `json:"requirements"`
}

func parseFlat(reg *model.MetaRegistry, entries []json.RawMessage) {
	for _, raw := range entries {
		var e flatEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue // malformed entry: skipped, not fatal
		}
		if e.ID == "" {
			continue // required field missing
		}

		p := model.NewPluginData(e.ID)
		p.Name = e.Name
		p.Version = e.Version
		p.SetLink(e.RepositoryURL)
		p.PythonRequirements = e.Requirements
		p.Description = parseDescription(e.Description)
		p.Authors = parseAuthors(e.Authors)
		p.Dependencies = parseDependencies(e.Dependencies)

		if e.LatestVersion != "" {
			p.Releases = []model.ReleaseData{{
				TagName:       "v" + e.LatestVersion,
				CreatedAt:     e.LastUpdateTime,
				DownloadCount: e.Downloads,
			}}
		}

		reg.Plugins[p.ID] = p
	}
}

// ---- Structured object shape ----

type structuredDoc struct {
	Plugins map[string]structuredPlugin `json:"plugins"`
}

type structuredPlugin struct {
	Meta    structuredMeta    `json:"meta"`
	Release structuredRelease `json:"release"`
}

type structuredMeta struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  json.RawMessage   `json:"description"`
	Authors      json.RawMessage   `json:"authors"`
	Dependencies map[string]string `json:"dependencies"`
	Requirements []string          `json:"requirements"`
	Repository   *structuredRepo   `json:"repository"`
}

type structuredRepo struct {
	URL string `json:"url"`
}

type structuredRelease struct {
	Releases []structuredReleaseEntry `json:"releases"`
}

type structuredReleaseEntry struct {
	Name        string          `json:"name"`
	TagName     string          `json:"tag_name"`
	CreatedAt   string          `json:"created_at"`
	Description string          `json:"description"`
	Prerelease  bool            `json:"prerelease"`
	URL         string          `json:"url"`
	Asset       *structuredAsset `json:"asset"`
}

type structuredAsset struct {
	BrowserDownloadURL string `json:"browser_download_url"`
	DownloadCount      int    `json:"download_count"`
	Size               int64  `json:"size"`
	Name               string `json:"name"`
}

func parseStructured(reg *model.MetaRegistry, doc structuredDoc) {
	for id, entry := range doc.Plugins {
		if id == "" {
			continue
		}
		p := model.NewPluginData(id)
		p.Name = entry.Meta.Name
		p.Version = entry.Meta.Version
		p.PythonRequirements = entry.Meta.Requirements
		p.Description = parseDescription(entry.Meta.Description)
		p.Authors = parseAuthors(entry.Meta.Authors)
		p.Dependencies = parseDependencies(entry.Meta.Dependencies)
		if entry.Meta.Repository != nil {
			p.SetLink(entry.Meta.Repository.URL)
		}

		for _, r := range entry.Release.Releases {
			rd := model.ReleaseData{
				Name:        r.Name,
				TagName:     r.TagName,
				CreatedAt:   r.CreatedAt,
				Description: r.Description,
				Prerelease:  r.Prerelease,
				URL:         r.URL,
			}
			if r.Asset != nil {
				rd.DownloadURL = r.Asset.BrowserDownloadURL
				rd.DownloadCount = r.Asset.DownloadCount
				rd.Size = r.Asset.Size
				rd.FileName = r.Asset.Name
			}
			p.Releases = append(p.Releases, rd)
		}

		reg.Plugins[p.ID] = p
	}
}

// ---- Shared field helpers ----

func parseDescription(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
		out["en_us"] = asString
	}
	return out
}

func parseAuthors(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
		return []string{asString}
	}
	return nil
}

func parseDependencies(raw map[string]string) map[string]version.Requirement {
	out := make(map[string]version.Requirement, len(raw))
	for id, req := range raw {
		out[id] = version.ParseRequirement(req)
	}
	return out
}
