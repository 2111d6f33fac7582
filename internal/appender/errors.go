package appender

import (
	"errors"
	"fmt"
)

// ErrAppendAfterClose is returned by mutating calls (AppendRow, Flush) on an
// appender that has been closed. The appender stays closed.
var ErrAppendAfterClose = errors.New("appender: append on closed appender")

// ErrDoubleClose is returned by Close on an already closed appender. It
// signals caller misuse; no state changes.
var ErrDoubleClose = errors.New("appender: already closed")

// TableNotFoundError reports that destination introspection returned zero
// columns for the requested table. It is fatal to construction and raised
// before any staging buffer exists.
type TableNotFoundError struct {
	Schema string
	Table  string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("appender: table %s.%s not found in destination", e.Schema, e.Table)
}
