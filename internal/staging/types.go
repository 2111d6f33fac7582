// DuckDB-to-SQLite column type mapping.
//
// The mapping is a closed table: a destination type that is not covered fails
// fast with UnsupportedTypeError instead of being forwarded as an opaque
// string and surfacing as a confusing insert error later.

package staging

import "strings"

// listSuffix marks DuckDB list/array types, e.g. "INTEGER[]" or "VARCHAR[3]".
const listSuffix = "]"

// MapType maps a DuckDB data_type string (as reported by
// information_schema.columns) into a SQLite column type.
//
// SQLite has a much smaller type vocabulary, so the mapping collapses onto
// canonical affinities:
//   - integer widths (signed and unsigned) and BOOLEAN -> INTEGER
//   - FLOAT/DOUBLE/REAL                                -> REAL
//   - DECIMAL(p,s)                                     -> TEXT, not NUMERIC:
//     NUMERIC affinity would store the value as a float and lose precision;
//     the exact decimal string survives the round trip and DuckDB casts it
//     back to the destination DECIMAL column on ingest.
//   - date/time types                                  -> TEXT (ISO-8601)
//   - UUID                                             -> TEXT (hex)
//   - list/array types ("...[]", "...[n]")             -> TEXT (bracketed,
//     comma-joined; SQLite has no list type)
//   - VARCHAR/BLOB                                     -> TEXT/BLOB
func MapType(duckType string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(duckType))

	if strings.HasSuffix(t, listSuffix) {
		return "TEXT", nil
	}
	if strings.HasPrefix(t, "DECIMAL") || strings.HasPrefix(t, "NUMERIC") {
		return "TEXT", nil
	}

	switch t {
	case "BOOLEAN", "BOOL",
		"TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT":
		return "INTEGER", nil
	case "FLOAT", "REAL", "DOUBLE":
		return "REAL", nil
	case "VARCHAR", "TEXT", "STRING":
		return "TEXT", nil
	case "BLOB", "BYTEA":
		return "BLOB", nil
	case "DATE", "TIME", "TIMESTAMP", "DATETIME",
		"TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ",
		"TIME WITH TIME ZONE", "TIMETZ":
		return "TEXT", nil
	case "UUID":
		return "TEXT", nil
	}

	return "", &UnsupportedTypeError{Type: duckType}
}
