package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StatusName is the fixed file name of the validation status marker inside
// the normalize output directory.
const StatusName = "validation_status.json"

// WriteStatus persists the validation report next to the manifest. The
// reporter consults it before touching the database.
func WriteStatus(dir string, rep *Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal validation status: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, StatusName), b, 0o644); err != nil {
		return fmt.Errorf("write validation status: %w", err)
	}
	return nil
}

// LoadStatus reads the validation status marker. A missing file is reported
// via the wrapped os error so callers can distinguish "never validated" from
// "validated and failed".
func LoadStatus(dir string) (*Report, error) {
	b, err := os.ReadFile(filepath.Join(dir, StatusName))
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, fmt.Errorf("decode validation status: %w", err)
	}
	return &rep, nil
}
