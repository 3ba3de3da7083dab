package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"chartetl/internal/config"
	"chartetl/internal/storage"
)

// Table is one report result: ordered columns and pre-formatted text cells.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// Render writes the table in human-readable form to w.
func (t *Table) Render(w io.Writer) {
	fmt.Fprintln(w, t.Title)
	if len(t.Rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	tw.AppendHeader(header)
	for _, r := range t.Rows {
		row := make(table.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		tw.AppendRow(row)
	}
	tw.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(t.Rows))
}

// WriteCSV writes the table (header + rows) to dir/name.
func (t *Table) WriteCSV(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: mkdir %s: %w", dir, err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("report: create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("report: write %s: %w", name, err)
	}
	for _, r := range t.Rows {
		if err := w.Write(r); err != nil {
			return fmt.Errorf("report: write %s: %w", name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("report: flush %s: %w", name, err)
	}
	return nil
}

// Run produces all three configured reports, rendering each to out and
// writing a CSV into report.output_dir.
func Run(ctx context.Context, p config.Pipeline, repo storage.Repository, out io.Writer) error {
	r, err := New(p, repo)
	if err != nil {
		return err
	}

	topN := p.Report.TopN
	dir := p.Report.OutputDir

	entries, err := r.TopEntries(ctx, p.Report.Year, topN)
	if err != nil {
		return err
	}
	parents, err := r.TopParents(ctx, topN)
	if err != nil {
		return err
	}
	snap, err := r.Snapshot(ctx, p.Report.ChartDate, p.Report.RegionID)
	if err != nil {
		return err
	}

	for _, t := range []struct {
		tbl  *Table
		name string
	}{
		{entries, fmt.Sprintf("top_%s_%d.csv", r.roles.child.Table, p.Report.Year)},
		{parents, fmt.Sprintf("top_%s.csv", r.roles.parent.Table)},
		{snap, fmt.Sprintf("snapshot_%s_%d.csv", strings.ReplaceAll(p.Report.ChartDate, "-", ""), p.Report.RegionID)},
	} {
		t.tbl.Render(out)
		if err := t.tbl.WriteCSV(dir, t.name); err != nil {
			return err
		}
	}
	return nil
}
