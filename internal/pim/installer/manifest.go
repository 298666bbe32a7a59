package installer

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/opskernel/pimhub/internal/pim/resolver"
)

// manifestNames mirrors host.manifestNames: the plugin archive manifest
// filenames accepted for compatibility.
var manifestNames = map[string]bool{
	"mcdreforged.plugin.json": true,
	"mcdr_plugin.json":        true,
}

type rawManifest struct {
	ID                 string            `json:"id"`
	Version            string            `json:"version"`
	Dependencies       map[string]string `json:"dependencies"`
	PythonRequirements []string          `json:"requirements"`
}

// readArchive opens path (a .mcdr zip) and returns the resolver's view of
// its bundled dependencies plus a requirements.txt file, if any is present
// anywhere in the archive. A non-zip file (a bare .py plugin) or an archive
// without a recognized manifest yields an empty, non-error ArchiveManifest:
// an archive-read failure is logged, not fatal, treated as "no extra
// dependencies."
func readArchive(path string) (*resolver.ArchiveManifest, string, error) {
	if !strings.HasSuffix(path, ".mcdr") {
		return &resolver.ArchiveManifest{}, "", nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return &resolver.ArchiveManifest{}, "", err
	}
	defer zr.Close()

	out := &resolver.ArchiveManifest{}
	var id string
	for _, f := range zr.File {
		name := baseName(f.Name)
		switch {
		case manifestNames[name]:
			m, err := readManifestEntry(f)
			if err != nil {
				continue // malformed manifest: skip, not fatal
			}
			id = m.ID
			out.Dependencies = m.Dependencies
		case strings.EqualFold(name, "requirements.txt"):
			reqs, err := readRequirementsEntry(f)
			if err == nil {
				out.PythonRequirements = append(out.PythonRequirements, reqs...)
			}
		}
	}
	return out, id, nil
}

func readManifestEntry(f *zip.File) (rawManifest, error) {
	rc, err := f.Open()
	if err != nil {
		return rawManifest{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return rawManifest{}, err
	}
	var m rawManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return rawManifest{}, err
	}
	return m, nil
}

func readRequirementsEntry(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out []string
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func baseName(zipEntryName string) string {
	return filepath.Base(zipEntryName)
}
