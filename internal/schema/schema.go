// Package schema derives relational table definitions from the pipeline
// configuration. The definitions are backend-agnostic: semantic column types
// ("id", "text", "date", "int", "numeric") are mapped to concrete SQL types
// by each storage backend's DDL renderer.
//
// The functions here are pure and deterministic, which makes them
// straightforward to test and reuse.
package schema

import (
	"fmt"

	"chartetl/internal/config"
)

// ColumnType is a semantic column type, mapped to SQL by the backends.
type ColumnType string

const (
	TypeID      ColumnType = "id"      // surrogate integer key
	TypeText    ColumnType = "text"    // natural key / attribute
	TypeDate    ColumnType = "date"    // observation date
	TypeInt     ColumnType = "int"     // rank/position
	TypeNumeric ColumnType = "numeric" // metric value
)

// Reference names the dimension column a foreign key points at.
type Reference struct {
	Table  string
	Column string
}

// ColumnDef describes a single column of a normalized table.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PrimaryKey bool
	References *Reference // nil unless the column is a foreign key
}

// TableDef holds one table: its name, ordered columns, and (for the fact
// table) the date column that drives range partitioning.
type TableDef struct {
	Name    string
	Kind    string // "dimension" or "fact"
	Columns []ColumnDef

	// PartitionColumn is set on the fact table when partition-by-year is
	// requested; backends without native partitioning ignore it.
	PartitionColumn string
}

// ColumnNames returns the ordered column names.
func (t TableDef) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// FromPipeline derives the full table set in load order: dimensions in
// declaration order (parents precede children by config validation), the
// fact table last. This ordered list IS the loader's dependency list; the
// loader must not reorder it.
func FromPipeline(p config.Pipeline) ([]TableDef, error) {
	n := p.Normalize
	if len(n.Dimensions) == 0 {
		return nil, fmt.Errorf("schema: no dimensions configured")
	}
	if n.Fact.Table == "" {
		return nil, fmt.Errorf("schema: no fact table configured")
	}

	idColByTable := make(map[string]string, len(n.Dimensions))
	for _, d := range n.Dimensions {
		idColByTable[d.Table] = d.IDColumn
	}

	var tables []TableDef
	for _, d := range n.Dimensions {
		t := TableDef{Name: d.Table, Kind: "dimension"}
		t.Columns = append(t.Columns, ColumnDef{Name: d.IDColumn, Type: TypeID, NotNull: true, PrimaryKey: true})
		for _, kc := range d.KeyColumns {
			t.Columns = append(t.Columns, ColumnDef{Name: kc, Type: TypeText, NotNull: true})
		}
		if d.Parent != "" {
			parentID, ok := idColByTable[d.Parent]
			if !ok {
				return nil, fmt.Errorf("schema: dimension %q references unknown parent %q", d.Table, d.Parent)
			}
			t.Columns = append(t.Columns, ColumnDef{
				Name:       parentID,
				Type:       TypeID,
				NotNull:    true,
				References: &Reference{Table: d.Parent, Column: parentID},
			})
		}
		for _, ac := range d.AttrColumns {
			t.Columns = append(t.Columns, ColumnDef{Name: ac, Type: TypeText})
		}
		tables = append(tables, t)
	}

	fact := TableDef{Name: n.Fact.Table, Kind: "fact"}
	partitioned := p.Storage.DB.PartitionByYear
	fact.Columns = append(fact.Columns, ColumnDef{Name: n.Fact.IDColumn, Type: TypeID, NotNull: true, PrimaryKey: true})
	for _, d := range n.Dimensions {
		fact.Columns = append(fact.Columns, ColumnDef{
			Name:       d.IDColumn,
			Type:       TypeID,
			NotNull:    true,
			References: &Reference{Table: d.Table, Column: d.IDColumn},
		})
	}
	// Partitioned tables must include the partition key in the primary key.
	fact.Columns = append(fact.Columns, ColumnDef{
		Name: n.DateColumn, Type: TypeDate, NotNull: true, PrimaryKey: partitioned,
	})
	if n.Fact.RankColumn != "" {
		fact.Columns = append(fact.Columns, ColumnDef{Name: n.Fact.RankColumn, Type: TypeInt})
	}
	for _, m := range n.Fact.MetricColumns {
		fact.Columns = append(fact.Columns, ColumnDef{Name: m, Type: TypeNumeric})
	}
	if partitioned {
		fact.PartitionColumn = n.DateColumn
	}
	tables = append(tables, fact)

	return tables, nil
}

// ByName returns the table definition with the given name.
func ByName(tables []TableDef, name string) (TableDef, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableDef{}, false
}
