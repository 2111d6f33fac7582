package staging

import "fmt"

// ColumnCountError reports a row whose arity does not match the staging
// schema. The offending append leaves the buffer untouched; the caller may
// retry with a corrected row.
type ColumnCountError struct {
	Expected int
	Actual   int
}

func (e *ColumnCountError) Error() string {
	return fmt.Sprintf("staging: invalid number of columns: expected %d, got %d",
		e.Expected, e.Actual)
}

// UnsupportedTypeError reports a destination column type that has no entry in
// the staging type map. It aborts appender construction before any buffer is
// created.
type UnsupportedTypeError struct {
	Column string
	Type   string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("staging: column %s has unsupported type %q", e.Column, e.Type)
	}
	return fmt.Sprintf("staging: unsupported column type %q", e.Type)
}
