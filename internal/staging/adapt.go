// Value adaptation for the staging store.
//
// SQLite cannot store timestamps, UUIDs, decimals, or lists natively, so
// those values are serialized to deterministic text before binding. The
// adaptation is buffer-local (a plain function applied per value), so
// concurrent appenders in one process cannot interfere with each other's
// serialization rules.

package staging

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// adaptValue converts a single Go value into a form SQLite can bind:
//   - time.Time        -> ISO-8601 text in UTC
//   - uuid.UUID        -> 32-digit lowercase hex
//   - decimal.Decimal  -> exact decimal string
//   - slices (not []byte) -> "[a, b, c]"; DuckDB casts the bracketed form
//     back to its list type on ingest
//
// Everything else (numbers, strings, bools, []byte, nil) passes through to
// the driver unchanged.
func adaptValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return hex.EncodeToString(x[:])
	case decimal.Decimal:
		return x.String()
	case []byte:
		return x
	case []string:
		return "[" + strings.Join(x, ", ") + "]"
	case nil:
		return nil
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		elems := make([]string, rv.Len())
		for i := range elems {
			elems[i] = fmt.Sprint(rv.Index(i).Interface())
		}
		return "[" + strings.Join(elems, ", ") + "]"
	}

	return v
}

// adaptRow applies adaptValue to every value of a row, returning a new slice
// so the caller's row is never mutated.
func adaptRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = adaptValue(v)
	}
	return out
}
