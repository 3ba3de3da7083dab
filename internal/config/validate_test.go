package config

import (
	"strings"
	"testing"
)

// validPipeline returns a pipeline that passes every check; tests break one
// field at a time.
func validPipeline() Pipeline {
	return Pipeline{
		Job:    "charts",
		Source: Source{Kind: "file", File: SourceFile{Path: "charts.csv"}},
		Parser: Parser{Kind: "csv"},
		Normalize: Normalize{
			OutputDir:  "out",
			DateColumn: "date",
			Dimensions: []Dimension{
				{Table: "artists", IDColumn: "artist_id", KeyColumns: []string{"artist"}},
				{Table: "tracks", IDColumn: "track_id", KeyColumns: []string{"title"}, Parent: "artists"},
			},
			Fact: Fact{Table: "chart_entries", IDColumn: "entry_id", MetricColumns: []string{"streams"}},
		},
		Storage: Storage{Kind: "sqlite", DB: DBConfig{DSN: "charts.db"}},
	}
}

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func TestValidatePipeline_ValidMinimal(t *testing.T) {
	t.Parallel()

	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidatePipeline_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Pipeline)
		path   string
		msg    string
	}{
		{
			name:   "missing job",
			mutate: func(p *Pipeline) { p.Job = "" },
			path:   "job",
			msg:    "must not be empty",
		},
		{
			name:   "file source without path",
			mutate: func(p *Pipeline) { p.Source.File.Path = "" },
			path:   "source.file.path",
			msg:    "non-empty path",
		},
		{
			name: "http source without destination",
			mutate: func(p *Pipeline) {
				p.Source = Source{Kind: "http", HTTP: SourceHTTP{URL: "https://x.test/a.csv"}}
			},
			path: "source.http.path",
			msg:  "destination",
		},
		{
			name:   "no dimensions",
			mutate: func(p *Pipeline) { p.Normalize.Dimensions = nil },
			path:   "normalize.dimensions",
			msg:    "at least one dimension",
		},
		{
			name: "parent declared after child",
			mutate: func(p *Pipeline) {
				d := p.Normalize.Dimensions
				d[0], d[1] = d[1], d[0]
			},
			path: "normalize.dimensions[0].parent",
			msg:  "declared before",
		},
		{
			name: "duplicate dimension table",
			mutate: func(p *Pipeline) {
				p.Normalize.Dimensions[1] = Dimension{Table: "artists", IDColumn: "x_id", KeyColumns: []string{"x"}}
			},
			path: "normalize.dimensions[1].table",
			msg:  "already declared",
		},
		{
			name:   "dedupe metric not in metric_columns",
			mutate: func(p *Pipeline) { p.Normalize.Fact.DedupeKeepMax = "plays" },
			path:   "normalize.fact.dedupe_keep_max",
			msg:    "not one of metric_columns",
		},
		{
			name: "unknown filter op",
			mutate: func(p *Pipeline) {
				p.Normalize.Filters = []Filter{{Column: "chart", Op: "matches"}}
			},
			path: "normalize.filters[0].op",
			msg:  "unknown filter op",
		},
		{
			name:   "missing dsn",
			mutate: func(p *Pipeline) { p.Storage.DB.DSN = "" },
			path:   "storage.db.dsn",
			msg:    "must not be empty",
		},
		{
			name:   "negative top_n",
			mutate: func(p *Pipeline) { p.Report.TopN = -1 },
			path:   "report.top_n",
			msg:    "must not be negative",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline()
			tc.mutate(&p)
			issues := ValidatePipeline(p)
			if !hasIssue(t, issues, SeverityError, tc.path, tc.msg) {
				t.Fatalf("expected error at %s containing %q; got %+v", tc.path, tc.msg, issues)
			}
		})
	}
}

func TestValidatePipeline_Warnings(t *testing.T) {
	t.Parallel()

	p := validPipeline()
	p.Storage.Kind = "mysql"
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "storage.kind", "mysql") {
		t.Fatalf("expected warning for unknown storage kind; got %+v", issues)
	}

	p = validPipeline()
	p.Storage.DB.PartitionByYear = true
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "storage.db.partition_by_year", "ignored") {
		t.Fatalf("expected warning for sqlite partitioning; got %+v", issues)
	}
}
