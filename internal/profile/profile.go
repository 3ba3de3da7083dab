// Package profile implements the data profiling stage: a quick, read-only
// scan of the raw input that reports the column list, an inferred type and
// basic quality signals per column, and a few sample rows. The written
// report is the first thing to look at when a new chart dump arrives.
package profile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"chartetl/internal/config"
)

// DefaultMaxRows bounds the scan; profiling is a peek, not a full pass.
const DefaultMaxRows = 100

// ReportName is the file name the profile is written under.
const ReportName = "initial_data_profile.txt"

// Column is the profile of one raw input column.
type Column struct {
	Name         string
	InferredType string // "int", "float", "date", "text", "empty"
	NullCount    int
	DistinctSeen int
	MaxLen       int
	NonASCII     bool // any value contains non-ASCII runes
	NeedsNFC     bool // any value changes under NFC normalization
	Samples      []string
}

// Profile is the result of one profiling scan.
type Profile struct {
	Source      string
	RowsScanned int
	Columns     []Column
	SampleRows  [][]string
}

const maxSamples = 5

// Run scans up to maxRows records from src and profiles every column. The
// CSV dialect comes from the pipeline's parser options; row count 0 falls
// back to DefaultMaxRows.
func Run(ctx context.Context, src io.ReadCloser, p config.Pipeline, maxRows int) (*Profile, error) {
	defer src.Close()
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	r := csv.NewReader(src)
	r.Comma = p.Parser.Options.Rune("comma", ',')
	r.LazyQuotes = p.Parser.Options.Bool("lazy_quotes", false)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("profile: read header: %w", err)
	}

	prof := &Profile{Source: p.Source.File.Path}
	if p.Source.Kind == "http" {
		prof.Source = p.Source.HTTP.URL
	}

	cols := make([]*columnState, len(header))
	for i, name := range header {
		cols[i] = &columnState{col: Column{Name: strings.TrimSpace(name), InferredType: "empty"}, distinct: map[string]bool{}}
	}

	for prof.RowsScanned < maxRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("profile: read row: %w", err)
		}
		prof.RowsScanned++
		if len(prof.SampleRows) < maxSamples {
			prof.SampleRows = append(prof.SampleRows, append([]string{}, rec...))
		}
		for i, cell := range rec {
			if i >= len(cols) {
				break
			}
			cols[i].observe(cell, dateLayout(p))
		}
	}

	for _, cs := range cols {
		cs.col.DistinctSeen = len(cs.distinct)
		prof.Columns = append(prof.Columns, cs.col)
	}
	return prof, nil
}

type columnState struct {
	col      Column
	distinct map[string]bool
}

// observe folds one cell into the column profile, demoting the inferred type
// as looser values appear (int -> float -> date -> text).
func (cs *columnState) observe(cell, layout string) {
	c := &cs.col
	if cell == "" {
		c.NullCount++
		return
	}
	if len(cs.distinct) < 1000 {
		cs.distinct[cell] = true
	}
	if len(cell) > c.MaxLen {
		c.MaxLen = len(cell)
	}
	if len(c.Samples) < maxSamples && !contains(c.Samples, cell) {
		c.Samples = append(c.Samples, cell)
	}
	for _, r := range cell {
		if r > unicode.MaxASCII {
			c.NonASCII = true
			break
		}
	}
	if !c.NeedsNFC && norm.NFC.String(cell) != cell {
		c.NeedsNFC = true
	}

	c.InferredType = widen(c.InferredType, cellType(cell, layout))
}

func cellType(cell, layout string) string {
	if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return "int"
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return "float"
	}
	if _, err := time.Parse(layout, cell); err == nil {
		return "date"
	}
	return "text"
}

// widen merges the type seen so far with a new cell's type. "empty" yields
// to anything; mixed numeric kinds widen to float; everything else collapses
// to text.
func widen(have, got string) string {
	switch {
	case have == "empty":
		return got
	case have == got:
		return have
	case (have == "int" && got == "float") || (have == "float" && got == "int"):
		return "float"
	default:
		return "text"
	}
}

func dateLayout(p config.Pipeline) string {
	if p.Normalize.DateLayout != "" {
		return p.Normalize.DateLayout
	}
	return "2006-01-02"
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
