package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chartetl/internal/config"
)

// rowPredicate is a compiled validity predicate over a positional row.
type rowPredicate struct {
	checks []func(row []string) bool
}

// compileFilters turns the configured filter clauses into positional checks
// against the column order used by the parser. Compiling once avoids per-row
// name lookups in the hot loop. dateLayout is used by the date_range op.
func compileFilters(filters []config.Filter, colIx map[string]int, dateLayout string) (*rowPredicate, error) {
	p := &rowPredicate{checks: make([]func([]string) bool, 0, len(filters))}

	for _, f := range filters {
		ix, ok := colIx[f.Column]
		if !ok {
			return nil, fmt.Errorf("filter references unknown column %q", f.Column)
		}

		switch f.Op {
		case "equals":
			want := f.Value
			p.checks = append(p.checks, func(row []string) bool {
				return row[ix] == want
			})

		case "contains":
			want := f.Value
			p.checks = append(p.checks, func(row []string) bool {
				return strings.Contains(row[ix], want)
			})

		case "min":
			min := f.Min
			p.checks = append(p.checks, func(row []string) bool {
				v, ok := parseNum(row[ix])
				return ok && v >= min
			})

		case "positive":
			p.checks = append(p.checks, func(row []string) bool {
				v, ok := parseNum(row[ix])
				return ok && v > 0
			})

		case "range":
			lo, hi := f.Min, f.Max
			p.checks = append(p.checks, func(row []string) bool {
				v, ok := parseNum(row[ix])
				return ok && v >= lo && v <= hi
			})

		case "date_range":
			var from, to time.Time
			var err error
			if f.From != "" {
				if from, err = time.Parse(dateLayout, f.From); err != nil {
					return nil, fmt.Errorf("filter date_range: bad from %q: %w", f.From, err)
				}
			}
			if f.To != "" {
				if to, err = time.Parse(dateLayout, f.To); err != nil {
					return nil, fmt.Errorf("filter date_range: bad to %q: %w", f.To, err)
				}
			}
			p.checks = append(p.checks, func(row []string) bool {
				d, err := time.Parse(dateLayout, row[ix])
				if err != nil {
					return false
				}
				if !from.IsZero() && d.Before(from) {
					return false
				}
				if !to.IsZero() && d.After(to) {
					return false
				}
				return true
			})

		default:
			return nil, fmt.Errorf("unknown filter op %q", f.Op)
		}
	}
	return p, nil
}

// keep reports whether the row survives every filter clause.
func (p *rowPredicate) keep(row []string) bool {
	for _, check := range p.checks {
		if !check(row) {
			return false
		}
	}
	return true
}

// parseNum parses a numeric cell. Empty cells are treated as 0 so that
// metric columns with missing values behave like the source's fill-with-zero
// convention; genuinely unparseable cells fail the predicate.
func parseNum(s string) (float64, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
