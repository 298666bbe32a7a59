package registryfmt

import "testing"

func TestParseFlatShape(t *testing.T) {
	raw := []byte(`[
		{"id": "p1", "name": "Plugin One", "latest_version": "1.2.0", "downloads": 42},
		{"name": "missing id, should be skipped"},
		{"id": "p2", "dependencies": {"p1": ">=1.0.0"}}
	]`)

	reg, err := Parse("http://example.test/flat.json", raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(reg.Plugins) != 2 {
		t.Fatalf("expected 2 plugins (entry without id skipped), got %d", len(reg.Plugins))
	}

	p1, ok := reg.Get("p1")
	if !ok {
		t.Fatal("expected p1 to be present")
	}
	if len(p1.Releases) != 1 {
		t.Fatalf("expected latest_version to synthesize one release, got %d", len(p1.Releases))
	}
	if p1.Releases[0].TagName != "v1.2.0" {
		t.Errorf("TagName = %q, want v1.2.0", p1.Releases[0].TagName)
	}
	if p1.Releases[0].DownloadCount != 42 {
		t.Errorf("DownloadCount = %d, want 42", p1.Releases[0].DownloadCount)
	}

	p2, ok := reg.Get("p2")
	if !ok {
		t.Fatal("expected p2 to be present")
	}
	if _, ok := p2.Dependencies["p1"]; !ok {
		t.Error("expected p2 to depend on p1")
	}
}

func TestParseStructuredShape(t *testing.T) {
	raw := []byte(`{
		"plugins": {
			"p1": {
				"meta": {"name": "Plugin One", "version": "1.0.0", "dependencies": {}},
				"release": {"releases": [
					{"name": "v1.1.0", "tag_name": "v1.1.0", "created_at": "2024-01-01", "asset": {"browser_download_url": "http://dl/v1.1.0.mcdr", "name": "p1.mcdr"}},
					{"name": "v1.0.0", "tag_name": "v1.0.0", "created_at": "2023-01-01"}
				]}
			}
		}
	}`)

	reg, err := Parse("http://example.test/structured.json", raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	p1, ok := reg.Get("p1")
	if !ok {
		t.Fatal("expected p1 to be present")
	}
	if len(p1.Releases) != 2 {
		t.Fatalf("expected 2 releases, got %d", len(p1.Releases))
	}
	// Order must be preserved: index 0 is "latest".
	if p1.Releases[0].TagName != "v1.1.0" {
		t.Errorf("Releases[0].TagName = %q, want v1.1.0 (order must be preserved)", p1.Releases[0].TagName)
	}
	if p1.Releases[0].FileName != "p1.mcdr" {
		t.Errorf("FileName = %q, want p1.mcdr", p1.Releases[0].FileName)
	}
}

func TestParseMalformedEntriesSkippedNotFatal(t *testing.T) {
	raw := []byte(`[{"id": "good"}, {"id": 123}, {"id": "good2"}]`)
	reg, err := Parse("http://example.test/flat.json", raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if _, ok := reg.Get("good"); !ok {
		t.Error("expected good to survive despite a malformed sibling entry")
	}
	if _, ok := reg.Get("good2"); !ok {
		t.Error("expected good2 to survive despite a malformed sibling entry")
	}
}

func TestParseUnrecognizableShapeErrors(t *testing.T) {
	_, err := Parse("http://example.test/bad.json", []byte(`"just a string"`))
	if err == nil {
		t.Error("expected an error for a payload matching neither accepted shape")
	}
}
