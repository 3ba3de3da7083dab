// Package load implements the bulk-load stage: it reads the normalized
// dimension and fact CSVs named by the run manifest and transfers them into
// the configured storage backend, dimensions first, fact last.
//
// The manifest's table order is the declared dependency list; loading in that
// order guarantees every foreign key already has its target rows in place.
package load

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"chartetl/internal/config"
	"chartetl/internal/etlerr"
	"chartetl/internal/metrics"
	"chartetl/internal/normalize"
	"chartetl/internal/schema"
	"chartetl/internal/storage"
)

// DefaultBatchSize bounds fact-table transfer memory when the pipeline does
// not set storage.db.batch_size.
const DefaultBatchSize = 100000

// Result reports what a load run inserted.
type Result struct {
	Tables map[string]int64 // rows inserted per table
	Total  int64
}

// Run loads every table named by the manifest in p.Normalize.OutputDir into
// repo. When auto_create_table is set, the target schema (and, on Postgres,
// one fact partition per year present in the data) is created first.
//
// A batch rejected by the backend surfaces as *etlerr.LoadError naming the
// table and the 1-based batch index; batches committed before it stay in the
// database.
func Run(ctx context.Context, p config.Pipeline, repo storage.Repository) (*Result, error) {
	dir := p.Normalize.OutputDir
	m, err := normalize.LoadManifest(dir)
	if err != nil {
		return nil, &etlerr.SourceUnavailableError{Path: filepath.Join(dir, normalize.ManifestName), Err: err}
	}

	tables, err := schema.FromPipeline(p)
	if err != nil {
		return nil, err
	}
	defs := make(map[string]schema.TableDef, len(tables))
	for _, t := range tables {
		defs[t.Name] = t
	}

	if p.Storage.DB.AutoCreateTable {
		years := manifestYears(m)
		if err := storage.EnsureSchemaFromPipeline(ctx, p, years, repo); err != nil {
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}

	batchSize := p.Storage.DB.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	res := &Result{Tables: make(map[string]int64, len(m.Tables))}
	for _, mt := range m.Tables {
		def, ok := defs[mt.Name]
		if !ok {
			return res, fmt.Errorf("load: manifest table %q not in pipeline schema", mt.Name)
		}
		n, err := loadTable(ctx, repo, p.Job, dir, mt, def, batchSize)
		res.Tables[mt.Name] += n
		res.Total += n
		if err != nil {
			return res, err
		}
		if n != mt.RowCount {
			log.Printf("load: table=%s inserted=%d manifest_rows=%d (mismatch)", mt.Name, n, mt.RowCount)
		} else {
			log.Printf("load: table=%s inserted=%d files=%d", mt.Name, n, len(mt.Files))
		}
	}

	return res, nil
}

// loadTable streams all files of one manifest table through the batched
// loader.
func loadTable(
	ctx context.Context,
	repo storage.Repository,
	job string,
	dir string,
	mt normalize.ManifestTable,
	def schema.TableDef,
	batchSize int,
) (int64, error) {
	rows := make(chan []any, batchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		for _, f := range mt.Files {
			if err := readFile(ctx, filepath.Join(dir, f.Path), mt, def, rows); err != nil {
				return err
			}
		}
		return nil
	})

	var batch int
	copyFn := func(ctx context.Context, columns []string, batchRows [][]any) (int64, error) {
		batch++
		n, err := repo.CopyFrom(ctx, mt.Name, columns, batchRows)
		if err != nil {
			return n, &etlerr.LoadError{Table: mt.Name, Batch: batch, Err: err}
		}
		metrics.RecordBatches(job, 1)
		return n, nil
	}

	var total int64
	g.Go(func() error {
		n, err := storage.LoadBatches(ctx, mt.Name, mt.Columns, rows, batchSize, copyFn)
		total = n
		return err
	})

	return total, g.Wait()
}

// readFile streams one CSV file, coercing each cell to the typed value the
// backend expects for its column.
func readFile(
	ctx context.Context,
	path string,
	mt normalize.ManifestTable,
	def schema.TableDef,
	out chan<- []any,
) error {
	f, err := os.Open(path)
	if err != nil {
		return &etlerr.SourceUnavailableError{Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	// Header row; column order must match the manifest.
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("load: read header of %s: %w", path, err)
	}
	if len(header) != len(mt.Columns) {
		return fmt.Errorf("load: %s has %d columns, manifest says %d", path, len(header), len(mt.Columns))
	}

	cols := make([]schema.ColumnDef, len(mt.Columns))
	for i, name := range mt.Columns {
		found := false
		for _, c := range def.Columns {
			if c.Name == name {
				cols[i] = c
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("load: column %q of %s not in schema for table %s", name, path, mt.Name)
		}
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load: read %s: %w", path, err)
		}

		row := make([]any, len(rec))
		for i, cell := range rec {
			v, err := coerce(cell, cols[i])
			if err != nil {
				return &etlerr.LoadError{Table: mt.Name, Err: fmt.Errorf("%s column %q: %w", path, cols[i].Name, err)}
			}
			row[i] = v
		}

		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// coerce turns a CSV cell into the typed value for its column. Empty cells
// become NULL for nullable columns.
func coerce(cell string, col schema.ColumnDef) (any, error) {
	if cell == "" {
		if col.NotNull || col.PrimaryKey {
			if col.Type == schema.TypeText {
				return "", nil
			}
			return nil, fmt.Errorf("empty value in NOT NULL column")
		}
		return nil, nil
	}

	switch col.Type {
	case schema.TypeID, schema.TypeInt:
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", cell, err)
		}
		return n, nil
	case schema.TypeNumeric:
		if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("parse number %q: %w", cell, err)
		}
		return f, nil
	case schema.TypeDate, schema.TypeText:
		// Dates travel as ISO-8601 text; both backends accept it.
		return cell, nil
	default:
		return nil, fmt.Errorf("unknown column type %q", col.Type)
	}
}

// manifestYears collects the distinct partition years of the fact table.
func manifestYears(m *normalize.Manifest) []int {
	fact, ok := m.Fact()
	if !ok {
		return nil
	}
	seen := map[int]bool{}
	var years []int
	for _, f := range fact.Files {
		if f.Year != 0 && !seen[f.Year] {
			seen[f.Year] = true
			years = append(years, f.Year)
		}
	}
	sort.Ints(years)
	return years
}
