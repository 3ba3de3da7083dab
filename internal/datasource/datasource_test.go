package datasource

import (
	"testing"

	"chartetl/internal/config"
	"chartetl/internal/datasource/file"
)

func TestForPipeline(t *testing.T) {
	t.Parallel()

	p := config.Pipeline{Source: config.Source{Kind: "file", File: config.SourceFile{Path: "raw.csv"}}}
	src, err := ForPipeline(p)
	if err != nil {
		t.Fatalf("file source: %v", err)
	}
	if l, ok := src.(*file.Local); !ok || l.Path() != "raw.csv" {
		t.Fatalf("src = %#v, want Local over raw.csv", src)
	}

	// http sources read the downloaded path, not the URL.
	p.Source = config.Source{Kind: "http", HTTP: config.SourceHTTP{URL: "https://x.test/a.csv", Path: "data/raw/a.csv"}}
	src, err = ForPipeline(p)
	if err != nil {
		t.Fatalf("http source: %v", err)
	}
	if l, ok := src.(*file.Local); !ok || l.Path() != "data/raw/a.csv" {
		t.Fatalf("src = %#v, want Local over downloaded path", src)
	}

	p.Source.Kind = "ftp"
	if _, err := ForPipeline(p); err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
}
