package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"chartetl/internal/config"
	"chartetl/internal/etlerr"
	"chartetl/internal/load"
	"chartetl/internal/normalize"
	"chartetl/internal/storage"
	_ "chartetl/internal/storage/all"
	"chartetl/internal/validate"
)

const rawCSV = `artist,track,region,date,position,streams
Lorde,Green Light,us,2017-01-01,1,100
Drake,Passionfruit,us,2017-01-01,2,90
Lorde,Green Light,de,2017-01-02,1,80
Lorde,Liability,de,2017-01-02,2,60
SZA,Love Galaxy,de,2018-03-01,5,70
`

func testPipeline(dir, reportDir string) config.Pipeline {
	return config.Pipeline{
		Job:    "charts_test",
		Parser: config.Parser{Kind: "csv", Options: config.Options{"has_header": true}},
		Normalize: config.Normalize{
			OutputDir:  dir,
			DateColumn: "date",
			Dimensions: []config.Dimension{
				{Table: "artists", IDColumn: "artist_id", KeyColumns: []string{"artist"}},
				{Table: "tracks", IDColumn: "track_id", KeyColumns: []string{"track"}, Parent: "artists"},
				{Table: "region", IDColumn: "region_id", KeyColumns: []string{"region"}},
			},
			Fact: config.Fact{
				Table:         "chart_entries",
				IDColumn:      "entry_id",
				RankColumn:    "position",
				MetricColumns: []string{"streams"},
			},
		},
		Storage: config.Storage{
			Kind: "sqlite",
			DB:   config.DBConfig{DSN: ":memory:", AutoCreateTable: true},
		},
		Report: config.Report{
			OutputDir: reportDir,
			Year:      2017,
			ChartDate: "2017-01-02",
			RegionID:  2, // "de" is the second distinct region in file order
			TopN:      3,
		},
	}
}

// validatedRepo runs the whole pipeline (normalize, load, validate) so the
// reporter has a passing dataset to work with.
func validatedRepo(tb testing.TB, p config.Pipeline) storage.Repository {
	tb.Helper()
	ctx := context.Background()

	res, err := normalize.Run(ctx, io.NopCloser(strings.NewReader(rawCSV)), p)
	if err != nil {
		tb.Fatalf("normalize.Run: %v", err)
	}
	if _, err := normalize.Write(p.Normalize.OutputDir, "test.csv", p, res); err != nil {
		tb.Fatalf("normalize.Write: %v", err)
	}

	repo, err := storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DB.DSN})
	if err != nil {
		tb.Fatalf("storage.New: %v", err)
	}
	tb.Cleanup(repo.Close)

	if _, err := load.Run(ctx, p, repo); err != nil {
		tb.Fatalf("load.Run: %v", err)
	}
	if _, err := validate.Run(ctx, p, repo); err != nil {
		tb.Fatalf("validate.Run: %v", err)
	}
	return repo
}

func TestTopEntries(t *testing.T) {
	t.Parallel()

	p := testPipeline(t.TempDir(), t.TempDir())
	repo := validatedRepo(t, p)
	r, err := New(p, repo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tbl, err := r.TopEntries(context.Background(), 2017, 2)
	if err != nil {
		t.Fatalf("TopEntries: %v", err)
	}
	want := [][]string{
		{"1", "Green Light", "Lorde", "180"},
		{"2", "Passionfruit", "Drake", "90"},
	}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Fatalf("rows = %v, want %v", tbl.Rows, want)
	}

	if _, err := r.TopEntries(context.Background(), 0, 2); err == nil {
		t.Fatalf("want ParameterError for year 0")
	}
}

func TestTopParents(t *testing.T) {
	t.Parallel()

	p := testPipeline(t.TempDir(), t.TempDir())
	repo := validatedRepo(t, p)
	r, err := New(p, repo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tbl, err := r.TopParents(context.Background(), 3)
	if err != nil {
		t.Fatalf("TopParents: %v", err)
	}
	want := [][]string{
		{"1", "Lorde", "2"},
		{"2", "Drake", "1"},
		{"3", "SZA", "1"},
	}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Fatalf("rows = %v, want %v", tbl.Rows, want)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	p := testPipeline(t.TempDir(), t.TempDir())
	repo := validatedRepo(t, p)
	r, err := New(p, repo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	tbl, err := r.Snapshot(ctx, "2017-01-02", 2)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := [][]string{
		{"1", "Green Light", "Lorde", "80"},
		{"2", "Liability", "Lorde", "60"},
	}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Fatalf("rows = %v, want %v", tbl.Rows, want)
	}
}

// TestSnapshot_ParameterErrors covers both rejected parameters: a malformed
// date and a region id absent from the dimension.
func TestSnapshot_ParameterErrors(t *testing.T) {
	t.Parallel()

	p := testPipeline(t.TempDir(), t.TempDir())
	repo := validatedRepo(t, p)
	r, err := New(p, repo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	var pe *etlerr.ParameterError
	if _, err := r.Snapshot(ctx, "not-a-date", 1); !errors.As(err, &pe) {
		t.Fatalf("want ParameterError for bad date, got %v", err)
	}
	if pe.Name != "chart_date" {
		t.Errorf("parameter name = %q, want chart_date", pe.Name)
	}

	if _, err := r.Snapshot(ctx, "2017-01-02", 99); !errors.As(err, &pe) {
		t.Fatalf("want ParameterError for unknown region, got %v", err)
	}
	if pe.Name != "region_id" || !strings.Contains(pe.Reason, "region") {
		t.Errorf("parameter = %q reason %q, want region_id / mentions region", pe.Name, pe.Reason)
	}
}

// TestNew_RefusesUnvalidatedOrFailedDataset proves the validation guard.
func TestNew_RefusesUnvalidatedOrFailedDataset(t *testing.T) {
	t.Parallel()

	p := testPipeline(t.TempDir(), t.TempDir())

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()

	// No status file at all.
	if _, err := New(p, repo); err == nil {
		t.Fatalf("want error for unvalidated dataset")
	}

	// Persist a failed status.
	if err := validate.WriteStatus(p.Normalize.OutputDir, &validate.Report{
		Job:    p.Job,
		Passed: false,
		Checks: []validate.CheckResult{{Name: "row_count(artists)", Passed: false}},
	}); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	var vf *etlerr.ValidationFailure
	if _, err := New(p, repo); !errors.As(err, &vf) {
		t.Fatalf("want *etlerr.ValidationFailure, got %v", err)
	}
}

// TestRun_WritesCSVs runs the orchestrated report pass and checks the output
// files land in the report directory.
func TestRun_WritesCSVs(t *testing.T) {
	t.Parallel()

	reportDir := t.TempDir()
	p := testPipeline(t.TempDir(), reportDir)
	repo := validatedRepo(t, p)

	var buf bytes.Buffer
	if err := Run(context.Background(), p, repo, &buf); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{
		"top_tracks_2017.csv",
		"top_artists.csv",
		"snapshot_20170102_2.csv",
	} {
		if _, err := os.Stat(filepath.Join(reportDir, name)); err != nil {
			t.Errorf("missing report file %s: %v", name, err)
		}
	}
	if !strings.Contains(buf.String(), "Green Light") {
		t.Errorf("rendered output should contain report rows")
	}
}
