package postgres

import (
	"fmt"
	"strings"

	"chartetl/internal/schema"
)

// sqlType maps a semantic column type to its Postgres type.
func sqlType(t schema.ColumnType) (string, error) {
	switch t {
	case schema.TypeID:
		return "BIGINT", nil
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeInt:
		return "INTEGER", nil
	case schema.TypeNumeric:
		return "NUMERIC", nil
	default:
		return "", fmt.Errorf("postgres ddl: unknown column type %q", t)
	}
}

// BuildCreateTableSQL builds a deterministic Postgres CREATE TABLE statement
// for the given table definition.
//
// Rules:
//   - Each column must have a non-empty name and a known semantic type.
//   - Primary-key columns are always rendered as NOT NULL.
//   - PRIMARY KEY and FOREIGN KEY are rendered as separate constraint clauses
//     using quoted column names, in declaration order.
//   - Identifiers are double-quoted; embedded double-quotes are escaped.
//   - A non-empty PartitionColumn appends PARTITION BY RANGE on that column.
//   - The statement uses CREATE TABLE IF NOT EXISTS.
func BuildCreateTableSQL(pgSchema string, t schema.TableDef) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("postgres ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("postgres ddl: at least one column is required")
	}

	fqn := quoteIdent(pgSchema) + "." + quoteIdent(t.Name)

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("postgres ddl: column with empty name in table %s", t.Name)
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
			quoteIdent(pgSchema)+"."+quoteIdent(c.References.Table),
			quoteIdent(c.References.Column),
		))
	}

	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		fqn,
		strings.Join(cols, ",\n  "),
	)
	if t.PartitionColumn != "" {
		stmt += fmt.Sprintf(" PARTITION BY RANGE (%s)", quoteIdent(t.PartitionColumn))
	}
	return stmt + ";", nil
}

// BuildPartitionSQL builds the DDL for one yearly range partition of a
// partitioned fact table. The partition covers [year-01-01, year+1-01-01).
func BuildPartitionSQL(pgSchema string, t schema.TableDef, year int) (string, error) {
	if t.PartitionColumn == "" {
		return "", fmt.Errorf("postgres ddl: table %s is not partitioned", t.Name)
	}
	if year <= 0 {
		return "", fmt.Errorf("postgres ddl: invalid partition year %d", year)
	}

	part := fmt.Sprintf("%s_y%d", t.Name, year)
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%d-01-01') TO ('%d-01-01');",
		quoteIdent(pgSchema)+"."+quoteIdent(part),
		quoteIdent(pgSchema)+"."+quoteIdent(t.Name),
		year,
		year+1,
	), nil
}
