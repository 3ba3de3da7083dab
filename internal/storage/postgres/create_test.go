package postgres

import (
	"strings"
	"testing"

	"chartetl/internal/schema"
)

func tracksDef() schema.TableDef {
	return schema.TableDef{
		Name: "tracks",
		Kind: "dimension",
		Columns: []schema.ColumnDef{
			{Name: "track_id", Type: schema.TypeID, NotNull: true, PrimaryKey: true},
			{Name: "track_name", Type: schema.TypeText, NotNull: true},
			{Name: "artist_id", Type: schema.TypeID, NotNull: true, References: &schema.Reference{Table: "artists", Column: "artist_id"}},
			{Name: "url", Type: schema.TypeText},
		},
	}
}

func TestBuildCreateTableSQL_Dimension(t *testing.T) {
	t.Parallel()

	got, err := BuildCreateTableSQL("public", tracksDef())
	if err != nil {
		t.Fatalf("BuildCreateTableSQL error: %v", err)
	}

	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "public"."tracks"`,
		`"track_id" BIGINT NOT NULL`,
		`"track_name" TEXT NOT NULL`,
		`"url" TEXT`,
		`PRIMARY KEY ("track_id")`,
		`FOREIGN KEY ("artist_id") REFERENCES "public"."artists" ("artist_id")`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("statement missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "PARTITION") {
		t.Errorf("dimension must not be partitioned:\n%s", got)
	}
}

func TestBuildCreateTableSQL_PartitionedFact(t *testing.T) {
	t.Parallel()

	fact := schema.TableDef{
		Name: "chart_entries",
		Kind: "fact",
		Columns: []schema.ColumnDef{
			{Name: "entry_id", Type: schema.TypeID, NotNull: true, PrimaryKey: true},
			{Name: "track_id", Type: schema.TypeID, NotNull: true, References: &schema.Reference{Table: "tracks", Column: "track_id"}},
			{Name: "chart_date", Type: schema.TypeDate, NotNull: true, PrimaryKey: true},
			{Name: "chart_position", Type: schema.TypeInt},
			{Name: "streams", Type: schema.TypeNumeric},
		},
		PartitionColumn: "chart_date",
	}

	got, err := BuildCreateTableSQL("public", fact)
	if err != nil {
		t.Fatalf("BuildCreateTableSQL error: %v", err)
	}
	for _, want := range []string{
		`PRIMARY KEY ("entry_id", "chart_date")`,
		`"chart_position" INTEGER`,
		`"streams" NUMERIC`,
		`PARTITION BY RANGE ("chart_date")`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("statement missing %q:\n%s", want, got)
		}
	}
}

func TestBuildPartitionSQL(t *testing.T) {
	t.Parallel()

	fact := schema.TableDef{Name: "chart_entries", PartitionColumn: "chart_date"}
	got, err := BuildPartitionSQL("public", fact, 2017)
	if err != nil {
		t.Fatalf("BuildPartitionSQL error: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "public"."chart_entries_y2017" PARTITION OF "public"."chart_entries" FOR VALUES FROM ('2017-01-01') TO ('2018-01-01');`
	if got != want {
		t.Fatalf("partition DDL:\n got %s\nwant %s", got, want)
	}

	if _, err := BuildPartitionSQL("public", schema.TableDef{Name: "tracks"}, 2017); err == nil {
		t.Fatalf("want error for non-partitioned table")
	}
}
