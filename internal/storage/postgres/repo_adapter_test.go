package postgres

import (
	"context"
	"strings"
	"testing"

	"chartetl/internal/config"
	"chartetl/internal/storage"
)

// execRecorder captures DDL statements passed to Exec.
type execRecorder struct {
	stmts []string
}

func (e *execRecorder) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (e *execRecorder) Query(ctx context.Context, sql string, args ...any) ([][]any, error) {
	return nil, nil
}
func (e *execRecorder) Exec(ctx context.Context, sql string, args ...any) error {
	e.stmts = append(e.stmts, sql)
	return nil
}
func (e *execRecorder) Qualify(table string) string { return table }
func (e *execRecorder) Close()                      {}

func TestDDLBootstrap_CreatesTablesInLoadOrder(t *testing.T) {
	t.Parallel()

	p := config.Pipeline{
		Storage: config.Storage{Kind: "postgres", DB: config.DBConfig{PartitionByYear: true}},
		Normalize: config.Normalize{
			DateColumn: "chart_date",
			Dimensions: []config.Dimension{
				{Table: "artists", IDColumn: "artist_id", KeyColumns: []string{"artist_name"}},
				{Table: "tracks", IDColumn: "track_id", KeyColumns: []string{"track_name"}, Parent: "artists"},
			},
			Fact: config.Fact{
				Table:         "chart_entries",
				IDColumn:      "entry_id",
				MetricColumns: []string{"streams"},
			},
		},
	}

	rec := &execRecorder{}
	if err := storage.EnsureSchemaFromPipeline(context.Background(), p, []int{2017, 2018}, rec); err != nil {
		t.Fatalf("EnsureSchemaFromPipeline error: %v", err)
	}

	// 3 CREATE TABLE statements followed by 2 partitions.
	if len(rec.stmts) != 5 {
		t.Fatalf("got %d statements, want 5:\n%s", len(rec.stmts), strings.Join(rec.stmts, "\n"))
	}
	wantOrder := []string{
		`"public"."artists"`,
		`"public"."tracks"`,
		`"public"."chart_entries"`,
		`"public"."chart_entries_y2017"`,
		`"public"."chart_entries_y2018"`,
	}
	for i, want := range wantOrder {
		if !strings.Contains(rec.stmts[i], want) {
			t.Errorf("statement %d should target %s:\n%s", i, want, rec.stmts[i])
		}
	}
}
