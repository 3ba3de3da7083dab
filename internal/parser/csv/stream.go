// Package csv streams delimited input into rows aligned to a caller-provided
// column order. It never buffers the whole file; rows flow to the caller over
// a channel and malformed lines are soft-dropped through an error callback.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"chartetl/internal/config"
	"chartetl/internal/etlerr"
)

const utf8BOM = "\uFEFF"

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	if strings.HasPrefix(headers[0], utf8BOM) {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}
	return headers
}

// Stream reads CSV from src and sends one []string per data row to out, with
// cells reordered to match 'columns'. The caller owns closing 'out' after
// Stream returns.
//
// Header handling:
//   - If options.has_header==true (default), the first line is treated as
//     header and mapped via options.header_map (source-name -> canonical).
//   - A dest→source mapping is then built: colIx[targetIndex] = sourceIndex.
//     Every requested column must resolve to a header cell; a missing column
//     is a *etlerr.SchemaError, surfaced immediately.
//   - If has_header==false, positional mapping is assumed (colIx[i] = i).
//
// Tuning/robustness (all optional via options):
//   - comma (string; first rune used; default ',')
//   - trim_space (bool; default true)
//   - lazy_quotes (bool; default false) → csv.Reader.LazyQuotes
//
// onErr(line, err) receives recoverable row errors (soft-drop).
func Stream(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- []string,
	onErr func(line int, err error),
) error {
	defer src.Close()

	hasHeader := opt.Bool("has_header", true)
	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")
	lazy := opt.Bool("lazy_quotes", false)

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	cr.FieldsPerRecord = -1 // tolerant by default; width enforced below

	// Build dest→source mapping.
	colIx := make([]int, len(columns)) // colIx[target] = source index
	for i := range colIx {
		colIx[i] = i // positional fallback for header-less input
	}

	line := 0
	read := func() ([]string, error) { line++; return cr.Read() }

	if hasHeader {
		hdr, err := read()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		hdr = StripHeaderBOM(hdr)

		// Index header cells by canonical (post-map) name.
		byName := make(map[string]int, len(hdr))
		for i, raw := range hdr {
			name := strings.TrimSpace(raw)
			if mapped, ok := hm[name]; ok && mapped != "" {
				name = mapped
			}
			byName[name] = i
		}

		for i, want := range columns {
			ix, ok := byName[want]
			if !ok {
				return &etlerr.SchemaError{Column: want}
			}
			colIx[i] = ix
		}
	}

	for {
		rec, err := read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, err)
			}
			continue
		}

		row := make([]string, len(columns))
		ok := true
		for i, src := range colIx {
			if src < 0 || src >= len(rec) {
				ok = false
				break
			}
			cell := rec[src]
			if trim {
				cell = strings.TrimSpace(cell)
			}
			// rec is reused by csv.Reader; the row must own its memory.
			row[i] = strings.Clone(cell)
		}
		if !ok {
			if onErr != nil {
				onErr(line, fmt.Errorf("row too short: %d fields", len(rec)))
			}
			continue
		}

		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
