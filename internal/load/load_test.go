package load

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"chartetl/internal/config"
	"chartetl/internal/etlerr"
	"chartetl/internal/metrics"
	"chartetl/internal/normalize"
	"chartetl/internal/storage"
	_ "chartetl/internal/storage/all"
)

const rawCSV = `artist,region,date,position,streams
Lorde,us,2017-01-01,1,100
Drake,us,2017-01-01,2,90
Lorde,de,2017-01-02,1,80
SZA,de,2018-03-01,5,70
`

func testPipeline(dir string) config.Pipeline {
	return config.Pipeline{
		Job:    "charts_test",
		Parser: config.Parser{Kind: "csv", Options: config.Options{"has_header": true}},
		Normalize: config.Normalize{
			OutputDir:  dir,
			DateColumn: "date",
			Dimensions: []config.Dimension{
				{Table: "artists", IDColumn: "artist_id", KeyColumns: []string{"artist"}},
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
			DB:   config.DBConfig{DSN: ":memory:", BatchSize: 2, AutoCreateTable: true},
		},
	}
}

// normalizeToDir runs normalization over rawCSV and writes the output files
// plus manifest into dir.
func normalizeToDir(tb testing.TB, p config.Pipeline) *normalize.Manifest {
	tb.Helper()
	res, err := normalize.Run(context.Background(), io.NopCloser(strings.NewReader(rawCSV)), p)
	if err != nil {
		tb.Fatalf("normalize.Run: %v", err)
	}
	m, err := normalize.Write(p.Normalize.OutputDir, "test.csv", p, res)
	if err != nil {
		tb.Fatalf("normalize.Write: %v", err)
	}
	return m
}

func openRepo(tb testing.TB, p config.Pipeline) storage.Repository {
	tb.Helper()
	repo, err := storage.New(context.Background(), storage.Config{
		Kind: p.Storage.Kind,
		DSN:  p.Storage.DB.DSN,
	})
	if err != nil {
		tb.Fatalf("storage.New: %v", err)
	}
	tb.Cleanup(repo.Close)
	return repo
}

// TestRun_LoadsAllTables verifies every manifest table lands in the database
// with row counts matching the manifest, across multiple batches and fact
// partitions.
func TestRun_LoadsAllTables(t *testing.T) {
	t.Parallel()

	p := testPipeline(t.TempDir())
	m := normalizeToDir(t, p)
	repo := openRepo(t, p)

	res, err := Run(context.Background(), p, repo)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, mt := range m.Tables {
		if got := res.Tables[mt.Name]; got != mt.RowCount {
			t.Errorf("table %s: inserted %d, manifest says %d", mt.Name, got, mt.RowCount)
		}
		rows, err := repo.Query(context.Background(), "SELECT COUNT(*) FROM "+mt.Name)
		if err != nil {
			t.Fatalf("count %s: %v", mt.Name, err)
		}
		if n, _ := rows[0][0].(int64); n != mt.RowCount {
			t.Errorf("table %s: DB has %d rows, manifest says %d", mt.Name, n, mt.RowCount)
		}
	}
	if res.Total != 4+3+2 {
		t.Errorf("total inserted = %d, want 9", res.Total)
	}

	// Spot-check a joined row to prove foreign keys line up after the load.
	rows, err := repo.Query(context.Background(), `
		SELECT a.artist, e.streams
		FROM chart_entries e
		JOIN artists a ON a.artist_id = e.artist_id
		WHERE e.date = ? AND e.position = ?`, "2018-03-01", int64(5))
	if err != nil {
		t.Fatalf("join query: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "SZA" {
		t.Fatalf("join result = %v, want [[SZA 70]]", rows)
	}
}

// batchCounter tallies committed-batch counter increments.
type batchCounter struct {
	batches float64
	job     string
}

func (c *batchCounter) IncCounter(name string, delta float64, labels metrics.Labels) {
	if name == "chartetl_batches_total" {
		c.batches += delta
		c.job = labels["job"]
	}
}
func (c *batchCounter) ObserveHistogram(string, float64, metrics.Labels) {}
func (c *batchCounter) Flush() error                                    { return nil }

// TestRun_CountsCommittedBatches verifies every successful copy increments
// the batch counter under the pipeline's job label. Not parallel: it swaps
// the global metrics backend.
func TestRun_CountsCommittedBatches(t *testing.T) {
	p := testPipeline(t.TempDir())
	normalizeToDir(t, p)
	repo := openRepo(t, p)

	c := &batchCounter{}
	metrics.SetBackend(c)
	t.Cleanup(func() { metrics.SetBackend(&batchCounter{}) })

	if _, err := Run(context.Background(), p, repo); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Batch size 2: artists (3 rows) in 2 batches, region (2) in 1, the
	// fact table (4) in 2.
	if c.batches != 5 {
		t.Fatalf("batch increments = %v, want 5", c.batches)
	}
	if c.job != "charts_test" {
		t.Fatalf("job label = %q, want charts_test", c.job)
	}
}

// TestRun_RejectedBatchSurfacesLoadError reloads into the same database so a
// primary-key violation rejects the first batch, and verifies the typed error
// names the table and batch while previously committed rows survive.
func TestRun_RejectedBatchSurfacesLoadError(t *testing.T) {
	t.Parallel()

	p := testPipeline(t.TempDir())
	normalizeToDir(t, p)
	repo := openRepo(t, p)

	if _, err := Run(context.Background(), p, repo); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	_, err := Run(context.Background(), p, repo)
	if err == nil {
		t.Fatalf("second Run should fail on duplicate keys")
	}

	var le *etlerr.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("want *etlerr.LoadError, got %T: %v", err, err)
	}
	if le.Table != "artists" || le.Batch != 1 {
		t.Fatalf("LoadError = table %q batch %d, want artists batch 1", le.Table, le.Batch)
	}

	// Rows from the first run remain.
	rows, err := repo.Query(context.Background(), "SELECT COUNT(*) FROM chart_entries")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n, _ := rows[0][0].(int64); n != 4 {
		t.Fatalf("chart_entries count = %d, want 4", n)
	}
}

// TestRun_MissingManifest maps a missing output directory to the typed
// source error.
func TestRun_MissingManifest(t *testing.T) {
	t.Parallel()

	p := testPipeline(t.TempDir()) // dir exists but holds no manifest
	repo := openRepo(t, p)

	_, err := Run(context.Background(), p, repo)
	var se *etlerr.SourceUnavailableError
	if !errors.As(err, &se) {
		t.Fatalf("want *etlerr.SourceUnavailableError, got %T: %v", err, err)
	}
}
