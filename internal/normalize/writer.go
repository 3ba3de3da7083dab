package normalize

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"chartetl/internal/config"
)

// Write persists a Result under dir: one CSV per dimension, one CSV per
// fact-table year partition, plus the manifest. Existing files are
// overwritten; the output of a run is always a complete, consistent set.
func Write(dir, source string, p config.Pipeline, res *Result) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	n := p.Normalize
	m := &Manifest{
		Job:         p.Job,
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Stats:       res.Stats,
	}

	for i, t := range res.Dimensions {
		file := t.Name + ".csv"
		if err := writeCSV(filepath.Join(dir, file), t.Columns, t.Rows); err != nil {
			return nil, err
		}
		mt := ManifestTable{
			Name:     t.Name,
			Kind:     "dimension",
			Columns:  t.Columns,
			Files:    []ManifestFile{{Path: file, Rows: int64(len(t.Rows))}},
			RowCount: int64(len(t.Rows)),
		}
		if parent := n.Dimensions[i].Parent; parent != "" {
			mt.DependsOn = []string{parent}
		}
		m.Tables = append(m.Tables, mt)
	}

	// Fact partitions: one file per year, rows in retention order. The date
	// sits right after the entry id and the dimension ids.
	dateIx := 1 + len(res.Dimensions)
	byYear := make(map[int][][]any, len(res.Years))
	for _, row := range res.Fact.Rows {
		y := row[dateIx].(time.Time).Year()
		byYear[y] = append(byYear[y], row)
	}

	factTable := ManifestTable{
		Name:       res.Fact.Name,
		Kind:       "fact",
		Columns:    res.Fact.Columns,
		DateColumn: n.DateColumn,
		RowCount:   int64(len(res.Fact.Rows)),
	}
	for _, d := range n.Dimensions {
		factTable.DependsOn = append(factTable.DependsOn, d.Table)
	}
	for _, y := range res.Years {
		file := fmt.Sprintf("%s_%d.csv", res.Fact.Name, y)
		rows := byYear[y]
		if err := writeCSV(filepath.Join(dir, file), res.Fact.Columns, rows); err != nil {
			return nil, err
		}
		factTable.Files = append(factTable.Files, ManifestFile{Path: file, Rows: int64(len(rows)), Year: y})
	}
	m.Tables = append(m.Tables, factTable)

	if err := WriteManifest(dir, m); err != nil {
		return nil, err
	}
	return m, nil
}

func writeCSV(path string, header []string, rows [][]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header %s: %w", path, err)
	}

	cells := make([]string, len(header))
	for _, row := range rows {
		for i, v := range row {
			cells[i] = FormatValue(v)
		}
		if err := w.Write(cells); err != nil {
			return fmt.Errorf("write row %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// FormatValue renders a typed cell for CSV output. Dates use the ISO layout;
// nil renders empty (NULL).
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(DefaultDateLayout)
	default:
		return fmt.Sprint(t)
	}
}
