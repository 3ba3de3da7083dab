package profile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteText renders the profile as a plain-text report.
func (p *Profile) WriteText(w io.Writer) {
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}

	fmt.Fprintf(w, "=== Column List ===\n%s\n\n", strings.Join(names, ", "))

	fmt.Fprintf(w, "=== Column Info (%d rows scanned) ===\n", p.RowsScanned)
	for _, c := range p.Columns {
		flags := []string{}
		if c.NonASCII {
			flags = append(flags, "non-ascii")
		}
		if c.NeedsNFC {
			flags = append(flags, "needs-nfc")
		}
		flagStr := ""
		if len(flags) > 0 {
			flagStr = " [" + strings.Join(flags, ",") + "]"
		}
		fmt.Fprintf(w, "%-24s type=%-5s nulls=%-4d distinct=%-5d max_len=%d%s\n",
			c.Name, c.InferredType, c.NullCount, c.DistinctSeen, c.MaxLen, flagStr)
		if len(c.Samples) > 0 {
			fmt.Fprintf(w, "%-24s samples: %s\n", "", strings.Join(c.Samples, " | "))
		}
	}

	fmt.Fprintf(w, "\n=== Sample Rows ===\n")
	for _, row := range p.SampleRows {
		fmt.Fprintln(w, strings.Join(row, ", "))
	}
}

// WriteFile writes the text report into dir/ReportName.
func WriteFile(dir string, p *Profile) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("profile: mkdir %s: %w", dir, err)
	}
	f, err := os.Create(filepath.Join(dir, ReportName))
	if err != nil {
		return fmt.Errorf("profile: create report: %w", err)
	}
	defer f.Close()
	p.WriteText(f)
	return nil
}
