package normalize

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"chartetl/internal/config"
	"chartetl/internal/etlerr"
	csvparser "chartetl/internal/parser/csv"
)

// DefaultDateLayout is the ISO layout used when the pipeline does not
// override normalize.date_layout.
const DefaultDateLayout = "2006-01-02"

// Stats summarizes one normalization run.
type Stats struct {
	RawRows       int64 `json:"raw_rows"`       // data rows read from the source
	ParseErrors   int64 `json:"parse_errors"`   // lines the CSV reader could not parse
	FilteredOut   int64 `json:"filtered_out"`   // rows failing the validity predicate
	InvalidValues int64 `json:"invalid_values"` // rows with unparseable date/rank/metric or empty key
	DupesRemoved  int64 `json:"dupes_removed"`  // duplicate fact keys collapsed
	FactRows      int64 `json:"fact_rows"`      // rows in the final fact table
}

// Table is one normalized output table held in memory: a header and typed
// rows (int64 ids and measures, time.Time dates, string attributes).
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Result is the in-memory outcome of a normalization run. Dimensions appear
// in declaration order, which is also their load order (parents first).
type Result struct {
	Dimensions []Table
	Fact       Table
	Years      []int // distinct fact years, ascending
	Stats      Stats
}

// Run streams the raw input and builds the star schema described by
// p.Normalize. The whole fact table is held in memory for the duration of
// the run; dimension values are deduplicated incrementally in a single pass.
//
// Errors: a required column missing from the input surfaces as
// *etlerr.SchemaError; a fact row referencing an unassigned dimension value
// surfaces as *etlerr.DataIntegrityError (an invariant violation, not
// recoverable); CSV-level line errors are soft-dropped and counted.
func Run(ctx context.Context, src io.ReadCloser, p config.Pipeline) (*Result, error) {
	n := p.Normalize

	columns := rawColumns(n)
	colIx := make(map[string]int, len(columns))
	for i, c := range columns {
		colIx[c] = i
	}

	layout := n.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}

	pred, err := compileFilters(n.Filters, colIx, layout)
	if err != nil {
		return nil, fmt.Errorf("compile filters: %w", err)
	}
	dateIx := colIx[n.DateColumn]

	rankIx := -1
	if n.Fact.RankColumn != "" {
		rankIx = colIx[n.Fact.RankColumn]
	}
	metricIx := make([]int, len(n.Fact.MetricColumns))
	for i, m := range n.Fact.MetricColumns {
		metricIx[i] = colIx[m]
	}
	keepMaxIx := -1 // index into the metric list, not the row
	for i, m := range n.Fact.MetricColumns {
		if m == n.Fact.DedupeKeepMax {
			keepMaxIx = i
		}
	}

	dims := make([]*dimBuilder, len(n.Dimensions))
	for i := range dims {
		dims[i] = newDimBuilder()
	}
	var stats Stats

	rows := make(chan []string, 1024)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		return csvparser.Stream(ctx, src, columns, p.Parser.Options, rows, func(line int, err error) {
			stats.ParseErrors++
			log.Printf("normalize: line %d: %v", line, err)
		})
	})

	// factKey -> index into factRows, used to collapse duplicates.
	factIndex := make(map[string]int)
	var factRows [][]any
	yearSet := map[int]struct{}{}

	// Width of one fact row: entry id + dim ids + date [+ rank] + metrics.
	factWidth := 1 + len(dims) + 1 + len(metricIx)
	if rankIx >= 0 {
		factWidth++
	}

	for row := range rows {
		stats.RawRows++

		if !pred.keep(row) {
			stats.FilteredOut++
			continue
		}

		date, err := time.Parse(layout, row[dateIx])
		if err != nil {
			stats.InvalidValues++
			continue
		}

		var rank int64
		if rankIx >= 0 {
			rank, err = strconv.ParseInt(row[rankIx], 10, 64)
			if err != nil {
				stats.InvalidValues++
				continue
			}
		}

		metrics := make([]any, len(metricIx))
		bad := false
		for i, ix := range metricIx {
			v, ok := parseMetric(row[ix])
			if !ok {
				bad = true
				break
			}
			metrics[i] = v
		}
		if bad {
			stats.InvalidValues++
			continue
		}

		// Check every dimension key up front so a row dropped for one empty
		// key never mints entries in the other dimensions.
		for _, d := range n.Dimensions {
			for _, kc := range d.KeyColumns {
				if cleanAttr(row[colIx[kc]]) == "" {
					bad = true
				}
			}
		}
		if bad {
			stats.InvalidValues++
			continue
		}

		// Resolve dimension ids, parents before children.
		ids := make([]int64, len(dims))
		rowIDs := make(map[string]int64, len(dims)) // table -> id for parent refs
		for di, d := range n.Dimensions {
			keyParts := make([]string, 0, len(d.KeyColumns)+1)
			for _, kc := range d.KeyColumns {
				keyParts = append(keyParts, cleanAttr(row[colIx[kc]]))
			}

			var parentID int64
			if d.Parent != "" {
				parentID = rowIDs[d.Parent]
				keyParts = append(keyParts, strconv.FormatInt(parentID, 10))
			}

			// Dimension row: id placeholder, keys, parent id, attrs.
			dimRow := make([]any, 0, 1+len(d.KeyColumns)+1+len(d.AttrColumns))
			dimRow = append(dimRow, int64(0))
			for _, kc := range d.KeyColumns {
				dimRow = append(dimRow, cleanAttr(row[colIx[kc]]))
			}
			if d.Parent != "" {
				dimRow = append(dimRow, parentID)
			}
			for _, ac := range d.AttrColumns {
				dimRow = append(dimRow, cleanAttr(row[colIx[ac]]))
			}

			id := dims[di].getOrAssign(naturalKey(keyParts), dimRow)
			ids[di] = id
			rowIDs[d.Table] = id
		}

		fact := make([]any, 0, factWidth)
		fact = append(fact, int64(0)) // entry id assigned after dedupe
		for _, id := range ids {
			fact = append(fact, id)
		}
		fact = append(fact, date)
		if rankIx >= 0 {
			fact = append(fact, rank)
		}
		fact = append(fact, metrics...)

		key := factDedupeKey(ids, date, rank)
		if prev, dup := factIndex[key]; dup {
			stats.DupesRemoved++
			if keepMaxIx >= 0 && metricGreater(metrics[keepMaxIx], factRows[prev][factWidth-len(metrics)+keepMaxIx]) {
				factRows[prev] = fact
			}
			continue
		}
		factIndex[key] = len(factRows)
		factRows = append(factRows, fact)
		yearSet[date.Year()] = struct{}{}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Assign dense entry ids in retention order.
	for i, r := range factRows {
		r[0] = int64(i + 1)
	}
	stats.FactRows = int64(len(factRows))

	res := &Result{
		Dimensions: make([]Table, len(dims)),
		Fact: Table{
			Name:    n.Fact.Table,
			Columns: FactColumns(n),
			Rows:    factRows,
		},
		Years: sortedYears(yearSet),
		Stats: stats,
	}
	for i, d := range n.Dimensions {
		res.Dimensions[i] = Table{
			Name:    d.Table,
			Columns: DimColumns(n, d),
			Rows:    dims[i].rows,
		}
	}

	if err := res.verify(n, dims); err != nil {
		return nil, err
	}

	log.Printf("normalize: raw=%d filtered=%d invalid=%d dupes=%d fact=%d dims=%s",
		stats.RawRows, stats.FilteredOut, stats.InvalidValues, stats.DupesRemoved,
		stats.FactRows, dimSizes(n, dims))

	return res, nil
}

// verify re-checks the referential invariant: every fact foreign key must be
// a valid id in its dimension. A violation means a normalization bug.
func (r *Result) verify(n config.Normalize, dims []*dimBuilder) error {
	for _, row := range r.Fact.Rows {
		for di, d := range n.Dimensions {
			id, _ := row[1+di].(int64)
			if id < 1 || id > int64(dims[di].size()) {
				return &etlerr.DataIntegrityError{Table: n.Fact.Table, Column: d.IDColumn, Value: id}
			}
		}
	}
	return nil
}

// DimColumns returns the output column order of one dimension table:
// surrogate id, natural keys, parent id (if any), carried attributes.
func DimColumns(n config.Normalize, d config.Dimension) []string {
	cols := make([]string, 0, 2+len(d.KeyColumns)+len(d.AttrColumns))
	cols = append(cols, d.IDColumn)
	cols = append(cols, d.KeyColumns...)
	if d.Parent != "" {
		for _, p := range n.Dimensions {
			if p.Table == d.Parent {
				cols = append(cols, p.IDColumn)
				break
			}
		}
	}
	cols = append(cols, d.AttrColumns...)
	return cols
}

// FactColumns returns the output column order of the fact table: entry id,
// dimension ids in declaration order, date, rank (if any), metrics.
func FactColumns(n config.Normalize) []string {
	cols := make([]string, 0, 3+len(n.Dimensions)+len(n.Fact.MetricColumns))
	cols = append(cols, n.Fact.IDColumn)
	for _, d := range n.Dimensions {
		cols = append(cols, d.IDColumn)
	}
	cols = append(cols, n.DateColumn)
	if n.Fact.RankColumn != "" {
		cols = append(cols, n.Fact.RankColumn)
	}
	cols = append(cols, n.Fact.MetricColumns...)
	return cols
}

// rawColumns returns the deduplicated list of raw columns the parser must
// supply, in a deterministic order.
func rawColumns(n config.Normalize) []string {
	var cols []string
	seen := map[string]struct{}{}
	add := func(c string) {
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}

	for _, d := range n.Dimensions {
		for _, c := range d.KeyColumns {
			add(c)
		}
		for _, c := range d.AttrColumns {
			add(c)
		}
	}
	add(n.DateColumn)
	add(n.Fact.RankColumn)
	for _, c := range n.Fact.MetricColumns {
		add(c)
	}
	for _, f := range n.Filters {
		add(f.Column)
	}
	return cols
}

func factDedupeKey(ids []int64, date time.Time, rank int64) string {
	// Fixed-width numeric encoding; unit separators keep parts unambiguous.
	b := make([]byte, 0, 16*(len(ids)+2))
	for _, id := range ids {
		b = strconv.AppendInt(b, id, 10)
		b = append(b, 0x1f)
	}
	b = date.AppendFormat(b, DefaultDateLayout)
	b = append(b, 0x1f)
	b = strconv.AppendInt(b, rank, 10)
	return string(b)
}

// parseMetric parses a metric cell: int64 fast path, float64 fallback,
// empty treated as zero (missing-metric convention of the source data).
func parseMetric(s string) (any, bool) {
	if s == "" {
		return int64(0), true
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

// metricGreater compares two metric values that may be int64 or float64.
func metricGreater(a, b any) bool {
	return metricFloat(a) > metricFloat(b)
}

func metricFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}

func sortedYears(set map[int]struct{}) []int {
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func dimSizes(n config.Normalize, dims []*dimBuilder) string {
	s := ""
	for i, d := range n.Dimensions {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%d", d.Table, dims[i].size())
	}
	return s
}
