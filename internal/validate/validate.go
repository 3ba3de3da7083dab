// Package validate implements the post-load consistency checks: row-count
// parity against the run manifest, foreign-key completeness, required
// non-null columns, natural-key duplicates, and a hashed sample comparison
// between the normalized files and the loaded tables.
//
// Checks never short-circuit: a failed check is recorded and the remaining
// checks still run, so one validation pass yields the complete picture.
package validate

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"chartetl/internal/config"
	"chartetl/internal/etlerr"
	"chartetl/internal/normalize"
	"chartetl/internal/storage"
)

// DefaultSampleSize is the number of fact rows compared when the pipeline
// does not set validate.sample_size.
const DefaultSampleSize = 100

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of a full validation run. It is persisted next to
// the manifest so the reporter can refuse to run against a failed dataset.
type Report struct {
	Job    string        `json:"job"`
	RanAt  time.Time     `json:"ran_at"`
	Passed bool          `json:"passed"`
	Checks []CheckResult `json:"checks"`
}

// Failed returns the names of the failed checks.
func (r *Report) Failed() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c.Name)
		}
	}
	return out
}

// Run executes every check against the loaded database and writes the status
// marker into the normalize output directory. When one or more checks fail,
// the returned error is a *etlerr.ValidationFailure naming them; the Report
// is returned in both cases. Infrastructure errors (unreadable manifest,
// failed queries) are returned as-is without writing a status.
func Run(ctx context.Context, p config.Pipeline, repo storage.Repository) (*Report, error) {
	dir := p.Normalize.OutputDir
	m, err := normalize.LoadManifest(dir)
	if err != nil {
		return nil, &etlerr.SourceUnavailableError{Path: filepath.Join(dir, normalize.ManifestName), Err: err}
	}

	rep := &Report{Job: p.Job, RanAt: time.Now().UTC()}
	v := &checker{p: p, repo: repo, m: m, dir: dir}

	steps := []func(context.Context) ([]CheckResult, error){
		v.rowCounts,
		v.foreignKeys,
		v.requiredNonNull,
		v.naturalKeyDupes,
		v.sampleParity,
	}
	for _, step := range steps {
		results, err := step(ctx)
		if err != nil {
			return nil, err
		}
		rep.Checks = append(rep.Checks, results...)
	}

	rep.Passed = len(rep.Failed()) == 0
	for _, c := range rep.Checks {
		log.Printf("validate: check=%s passed=%t %s", c.Name, c.Passed, c.Detail)
	}

	if err := WriteStatus(dir, rep); err != nil {
		return rep, err
	}
	if !rep.Passed {
		return rep, &etlerr.ValidationFailure{Failed: rep.Failed()}
	}
	return rep, nil
}

type checker struct {
	p    config.Pipeline
	repo storage.Repository
	m    *normalize.Manifest
	dir  string
}

// rowCounts compares each table's database row count with the manifest.
func (v *checker) rowCounts(ctx context.Context) ([]CheckResult, error) {
	var out []CheckResult
	for _, mt := range v.m.Tables {
		rows, err := v.repo.Query(ctx, "SELECT COUNT(*) FROM "+v.repo.Qualify(mt.Name))
		if err != nil {
			return nil, fmt.Errorf("validate: count %s: %w", mt.Name, err)
		}
		got := asInt64(rows[0][0])
		c := CheckResult{Name: "row_count(" + mt.Name + ")", Passed: got == mt.RowCount}
		if !c.Passed {
			c.Detail = fmt.Sprintf("db=%d manifest=%d", got, mt.RowCount)
		}
		out = append(out, c)
	}
	return out, nil
}

// foreignKeys verifies every surrogate id in a referencing column exists in
// the referenced dimension, naming up to five offending ids on failure.
func (v *checker) foreignKeys(ctx context.Context) ([]CheckResult, error) {
	n := v.p.Normalize

	type edge struct {
		child, col, parent, parentCol string
	}
	var edges []edge
	idCol := map[string]string{}
	for _, d := range n.Dimensions {
		idCol[d.Table] = d.IDColumn
	}
	for _, d := range n.Dimensions {
		if d.Parent != "" {
			edges = append(edges, edge{d.Table, idCol[d.Parent], d.Parent, idCol[d.Parent]})
		}
	}
	for _, d := range n.Dimensions {
		edges = append(edges, edge{n.Fact.Table, d.IDColumn, d.Table, d.IDColumn})
	}

	var out []CheckResult
	for _, e := range edges {
		q := fmt.Sprintf(
			"SELECT DISTINCT c.%s FROM %s c LEFT JOIN %s p ON p.%s = c.%s WHERE p.%s IS NULL LIMIT 5",
			e.col, v.repo.Qualify(e.child), v.repo.Qualify(e.parent), e.parentCol, e.col, e.parentCol,
		)
		rows, err := v.repo.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("validate: fk %s.%s: %w", e.child, e.col, err)
		}
		c := CheckResult{
			Name:   fmt.Sprintf("fk(%s.%s->%s)", e.child, e.col, e.parent),
			Passed: len(rows) == 0,
		}
		if !c.Passed {
			ids := make([]string, len(rows))
			for i, r := range rows {
				ids[i] = fmt.Sprint(r[0])
			}
			c.Detail = "orphaned ids: " + strings.Join(ids, ", ")
		}
		out = append(out, c)
	}
	return out, nil
}

// requiredNonNull counts NULLs in the configured required columns.
func (v *checker) requiredNonNull(ctx context.Context) ([]CheckResult, error) {
	var out []CheckResult
	for _, mt := range v.m.Tables {
		for _, col := range v.p.Validate.RequiredColumns[mt.Name] {
			q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", v.repo.Qualify(mt.Name), col)
			rows, err := v.repo.Query(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("validate: nulls %s.%s: %w", mt.Name, col, err)
			}
			nulls := asInt64(rows[0][0])
			c := CheckResult{Name: fmt.Sprintf("not_null(%s.%s)", mt.Name, col), Passed: nulls == 0}
			if !c.Passed {
				c.Detail = fmt.Sprintf("%d null rows", nulls)
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// naturalKeyDupes looks for repeated natural keys: the key columns (plus
// parent id) of each dimension, and the dimension ids + date (+ rank) of the
// fact table.
func (v *checker) naturalKeyDupes(ctx context.Context) ([]CheckResult, error) {
	n := v.p.Normalize
	idCol := map[string]string{}
	for _, d := range n.Dimensions {
		idCol[d.Table] = d.IDColumn
	}

	type target struct {
		table string
		key   []string
	}
	var targets []target
	for _, d := range n.Dimensions {
		key := append([]string{}, d.KeyColumns...)
		if d.Parent != "" {
			key = append(key, idCol[d.Parent])
		}
		targets = append(targets, target{d.Table, key})
	}
	factKey := make([]string, 0, len(n.Dimensions)+2)
	for _, d := range n.Dimensions {
		factKey = append(factKey, d.IDColumn)
	}
	factKey = append(factKey, n.DateColumn)
	if n.Fact.RankColumn != "" {
		factKey = append(factKey, n.Fact.RankColumn)
	}
	targets = append(targets, target{n.Fact.Table, factKey})

	var out []CheckResult
	for _, t := range targets {
		keys := strings.Join(t.key, ", ")
		q := fmt.Sprintf(
			"SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) d",
			keys, v.repo.Qualify(t.table), keys,
		)
		rows, err := v.repo.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("validate: dupes %s: %w", t.table, err)
		}
		dupes := asInt64(rows[0][0])
		c := CheckResult{Name: "dupes(" + t.table + ")", Passed: dupes == 0}
		if !c.Passed {
			c.Detail = fmt.Sprintf("%d duplicated keys", dupes)
		}
		out = append(out, c)
	}
	return out, nil
}

// sampleParity picks random fact rows from the normalized files and compares
// their xxh3 hash against the same rows read back from the database. All
// values are compared in canonical text form.
func (v *checker) sampleParity(ctx context.Context) ([]CheckResult, error) {
	fact, ok := v.m.Fact()
	if !ok || fact.RowCount == 0 {
		return []CheckResult{{Name: "sample_parity", Passed: true, Detail: "no fact rows"}}, nil
	}

	size := v.p.Validate.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}

	idIx := -1
	for i, c := range fact.Columns {
		if c == v.p.Normalize.Fact.IDColumn {
			idIx = i
		}
	}
	if idIx < 0 {
		return nil, fmt.Errorf("validate: fact id column %q not in manifest", v.p.Normalize.Fact.IDColumn)
	}

	ids := sampleIDs(size, fact.RowCount)
	fileHashes, err := v.hashFileRows(fact, idIx, ids)
	if err != nil {
		return nil, err
	}
	dbHashes, err := v.hashDBRows(ctx, fact, ids)
	if err != nil {
		return nil, err
	}

	var mismatches []string
	for id, fh := range fileHashes {
		dh, ok := dbHashes[id]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%d missing in db", id))
			continue
		}
		if fh != dh {
			mismatches = append(mismatches, fmt.Sprintf("%d differs", id))
		}
	}

	c := CheckResult{
		Name:   "sample_parity",
		Passed: len(mismatches) == 0,
		Detail: fmt.Sprintf("sampled %d rows", len(fileHashes)),
	}
	if !c.Passed {
		if len(mismatches) > 5 {
			mismatches = mismatches[:5]
		}
		c.Detail = "entry ids: " + strings.Join(mismatches, ", ")
	}
	return []CheckResult{c}, nil
}

// hashFileRows scans the fact files once and hashes the sampled rows.
func (v *checker) hashFileRows(fact normalize.ManifestTable, idIx int, ids map[int64]bool) (map[int64]uint64, error) {
	out := make(map[int64]uint64, len(ids))
	for _, f := range fact.Files {
		path := filepath.Join(v.dir, f.Path)
		if err := v.hashOneFile(path, idIx, ids, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (v *checker) hashOneFile(path string, idIx int, ids map[int64]bool, out map[int64]uint64) error {
	fh, err := os.Open(path)
	if err != nil {
		return &etlerr.SourceUnavailableError{Path: path, Err: err}
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.ReuseRecord = true
	if _, err := r.Read(); err != nil { // header
		return fmt.Errorf("validate: read header of %s: %w", path, err)
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("validate: read %s: %w", path, err)
		}
		id, err := strconv.ParseInt(rec[idIx], 10, 64)
		if err != nil {
			return fmt.Errorf("validate: bad entry id %q in %s: %w", rec[idIx], path, err)
		}
		if ids[id] {
			out[id] = hashRow(rec)
		}
	}
}

// hashDBRows reads the sampled rows back, casting every column to text so
// both backends produce the same canonical form.
func (v *checker) hashDBRows(ctx context.Context, fact normalize.ManifestTable, ids map[int64]bool) (map[int64]uint64, error) {
	idCol := v.p.Normalize.Fact.IDColumn

	proj := make([]string, len(fact.Columns))
	for i, c := range fact.Columns {
		proj[i] = fmt.Sprintf("CAST(%s AS TEXT)", c)
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s IN (%s)",
		strings.Join(proj, ", "), v.repo.Qualify(fact.Name), idCol, strings.Join(placeholders, ","),
	)
	rows, err := v.repo.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("validate: sample query: %w", err)
	}

	idIx := -1
	for i, c := range fact.Columns {
		if c == idCol {
			idIx = i
		}
	}

	out := make(map[int64]uint64, len(rows))
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, val := range r {
			cells[i] = asText(val)
		}
		id, err := strconv.ParseInt(cells[idIx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("validate: bad entry id in db row: %w", err)
		}
		out[id] = hashRow(cells)
	}
	return out, nil
}

// sampleIDs picks up to n distinct ids from [1, total].
func sampleIDs(n int, total int64) map[int64]bool {
	ids := make(map[int64]bool, n)
	if int64(n) >= total {
		for i := int64(1); i <= total; i++ {
			ids[i] = true
		}
		return ids
	}
	for len(ids) < n {
		ids[rand.Int63n(total)+1] = true
	}
	return ids
}

// hashRow hashes the canonical text cells of one row.
func hashRow(cells []string) uint64 {
	return xxh3.HashString(strings.Join(cells, "\x1f"))
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return -1
	}
}

func asText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
