package sqlite

import (
	"fmt"
	"strings"

	"chartetl/internal/schema"
)

// sqlType maps a semantic column type to its SQLite type affinity. Dates are
// stored as ISO-8601 TEXT, which sorts and compares correctly.
func sqlType(t schema.ColumnType) (string, error) {
	switch t {
	case schema.TypeID, schema.TypeInt:
		return "INTEGER", nil
	case schema.TypeText, schema.TypeDate:
		return "TEXT", nil
	case schema.TypeNumeric:
		return "NUMERIC", nil
	default:
		return "", fmt.Errorf("sqlite ddl: unknown column type %q", t)
	}
}

// BuildCreateTableSQL builds a deterministic SQLite CREATE TABLE statement for
// the given table definition. PartitionColumn is ignored; SQLite has no native
// range partitioning and the fact table is stored whole.
func BuildCreateTableSQL(t schema.TableDef) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("sqlite ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("sqlite ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("sqlite ddl: column with empty name in table %s", t.Name)
		}
		typ, err := sqlType(c.Type)
		if err != nil {
			return "", err
		}

		var sb strings.Builder
		sb.WriteString(quoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if c.NotNull || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quoteIdent(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	for _, c := range t.Columns {
		if c.References == nil {
			continue
		}
		cols = append(cols, fmt.Sprintf(
			"FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteIdent(c.Name),
			quoteIdent(c.References.Table),
			quoteIdent(c.References.Column),
		))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteIdent(t.Name),
		strings.Join(cols, ",\n  "),
	), nil
}
