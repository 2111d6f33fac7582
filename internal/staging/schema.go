// Package staging implements the transient, row-oriented staging store that
// backs the appender. Rows are accumulated cheaply in a file-backed SQLite
// database (one file per accumulation window) and later bulk-scanned into the
// destination in a single statement.
//
// Each Buffer owns exactly one SQLite file. The file is private to the buffer:
// it has no compatibility requirements and is deleted as soon as the buffer is
// rotated away or closed.
package staging

import (
	"errors"
	"fmt"
	"strings"
)

// Schema describes a staging table: an ordered set of column names and their
// SQL types, parallel slice by parallel slice. It is immutable once built;
// rotations reuse the same Schema for every fresh buffer.
type Schema struct {
	// Table is the staging table name. It matches the destination table name
	// so the bulk scan can address it by the same identifier.
	Table string

	// Columns is the ordered list of column names.
	Columns []string

	// Types holds one SQL type per column, parallel to Columns.
	Types []string
}

// Validate checks the structural invariants: a non-empty table name, at least
// one column, and parallel Columns/Types slices.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.Table) == "" {
		return fmt.Errorf("staging: schema table name must not be empty")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("staging: schema for %s has no columns", s.Table)
	}
	if len(s.Columns) != len(s.Types) {
		return fmt.Errorf("staging: schema for %s has %d columns but %d types",
			s.Table, len(s.Columns), len(s.Types))
	}
	return nil
}

// Mirror converts a destination-typed schema into its staging equivalent by
// mapping every column type through MapType. The first unmappable column
// aborts with an UnsupportedTypeError naming the column.
func Mirror(s Schema) (Schema, error) {
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}

	types := make([]string, 0, len(s.Types))
	for i, t := range s.Types {
		mapped, err := MapType(t)
		if err != nil {
			var ute *UnsupportedTypeError
			if errors.As(err, &ute) {
				ute.Column = s.Columns[i]
			}
			return Schema{}, err
		}
		types = append(types, mapped)
	}

	return Schema{Table: s.Table, Columns: s.Columns, Types: types}, nil
}
