package normalize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestName is the fixed file name of the run manifest inside the
// normalize output directory.
const ManifestName = "manifest.json"

// Manifest records what a normalization run produced: the output tables in
// load order (parents before children, fact last), their files and row
// counts, and the run statistics. The loader and the validator both consume
// it, which makes the stage ordering an explicit declared dependency list
// rather than an accident of call order.
type Manifest struct {
	Job         string    `json:"job"`
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source"`
	Tables      []ManifestTable `json:"tables"`
	Stats       Stats           `json:"stats"`
}

// ManifestTable describes one output table.
type ManifestTable struct {
	Name       string         `json:"name"`
	Kind       string         `json:"kind"` // "dimension" or "fact"
	Columns    []string       `json:"columns"`
	DateColumn string         `json:"date_column,omitempty"` // fact only
	Files      []ManifestFile `json:"files"`
	RowCount   int64          `json:"row_count"`
	DependsOn  []string       `json:"depends_on,omitempty"`
}

// ManifestFile is one physical file of a table. Fact tables have one file
// per year partition; dimensions have exactly one.
type ManifestFile struct {
	Path string `json:"path"` // relative to the manifest's directory
	Rows int64  `json:"rows"`
	Year int    `json:"year,omitempty"`
}

// Fact returns the manifest's fact table entry.
func (m *Manifest) Fact() (ManifestTable, bool) {
	for _, t := range m.Tables {
		if t.Kind == "fact" {
			return t, true
		}
	}
	return ManifestTable{}, false
}

// Table returns the named table entry.
func (m *Manifest) Table(name string) (ManifestTable, bool) {
	for _, t := range m.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return ManifestTable{}, false
}

// WriteManifest writes the manifest to dir/ManifestName.
func WriteManifest(dir string, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads dir/ManifestName.
func LoadManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
