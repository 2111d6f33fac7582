// Package appender provides a row-by-row interface for bulk-inserting data
// into an analytical (columnar) destination table.
//
// Single-row transactional inserts are expensive in a column store, so the
// appender stages rows in a cheap row-oriented SQLite buffer and periodically
// bulk-scans the whole buffer file into the destination in one statement.
// Crossing the configured row threshold flushes the buffer and replaces it
// with a fresh one sharing the same schema ("rotation"); Close performs the
// final flush.
//
// An Appender is single-threaded: every call blocks until the underlying
// stores respond, and the flush happens inline inside AppendRow when the
// threshold is crossed. It borrows the destination connection and never
// closes it; the caller owns that lifecycle.
package appender

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"duckstage/internal/metrics"
	"duckstage/internal/staging"
)

// DefaultFlushThreshold is the row count at which a buffer is automatically
// flushed into the destination and rotated.
const DefaultFlushThreshold = 2000

// Column is one destination column as reported by schema introspection.
type Column struct {
	Name string
	Type string // destination-native type string, e.g. "BIGINT", "VARCHAR[]"
}

// Destination is the contract the appender needs from the destination engine.
// Implementations must not take ownership of the underlying connection.
type Destination interface {
	// Columns returns the ordered column names and native types of
	// schema.table, or an empty slice when the table does not exist.
	Columns(ctx context.Context, schema, table string) ([]Column, error)

	// Ingest bulk-loads the entire staging file into schema.table in a
	// single statement and durably commits it. stagingPath is the staging
	// store file; the staging table inside it carries the destination table
	// name.
	Ingest(ctx context.Context, schema, table, stagingPath string) error
}

// Config carries the construction-time configuration surface.
type Config struct {
	// Schema is the destination schema name. Empty means "main".
	Schema string

	// Table is the destination table name.
	Table string

	// FlushThreshold is the buffered row count that triggers an automatic
	// flush-and-rotate. Zero or negative selects DefaultFlushThreshold.
	FlushThreshold int

	// Dir is where staging buffer files are created. Empty means the OS
	// temp directory.
	Dir string
}

// Appender accumulates rows for one destination table. It owns exactly one
// live staging buffer at a time and must not be shared between goroutines.
type Appender struct {
	dest   Destination
	cfg    Config
	schema staging.Schema // staging-mapped, reused for every rotation

	buf    *staging.Buffer
	closed bool
}

// New introspects the destination table, mirrors its schema into a fresh
// staging buffer, and returns an open appender.
//
// Construction fails with TableNotFoundError when introspection finds no
// columns, and with staging.UnsupportedTypeError when a destination column
// type has no staging mapping. In both cases no buffer file is created.
func New(ctx context.Context, dest Destination, cfg Config) (*Appender, error) {
	if dest == nil {
		return nil, fmt.Errorf("appender: destination must not be nil")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("appender: table must not be empty")
	}
	if cfg.Schema == "" {
		cfg.Schema = "main"
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = DefaultFlushThreshold
	}

	cols, err := dest.Columns(ctx, cfg.Schema, cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("appender: introspect %s.%s: %w", cfg.Schema, cfg.Table, err)
	}
	if len(cols) == 0 {
		return nil, &TableNotFoundError{Schema: cfg.Schema, Table: cfg.Table}
	}

	names := make([]string, len(cols))
	types := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		types[i] = c.Type
	}
	schema, err := staging.Mirror(staging.Schema{
		Table:   cfg.Table,
		Columns: names,
		Types:   types,
	})
	if err != nil {
		return nil, err
	}

	buf, err := staging.New(ctx, cfg.Dir, schema)
	if err != nil {
		return nil, err
	}

	return &Appender{dest: dest, cfg: cfg, schema: schema, buf: buf}, nil
}

// AppendRow buffers one row, positionally matching the destination column
// order. When the buffer reaches the flush threshold the accumulated rows are
// bulk-loaded into the destination and the buffer is rotated, transparently
// to the caller.
//
// Returns ErrAppendAfterClose once the appender is closed, and
// staging.ColumnCountError when the row arity does not match the schema
// (the buffer is left untouched; retry with a corrected row).
func (a *Appender) AppendRow(ctx context.Context, row []any) error {
	if a.closed {
		return ErrAppendAfterClose
	}

	if err := a.buf.Append(ctx, row); err != nil {
		return err
	}
	if a.buf.RowCount() >= a.cfg.FlushThreshold {
		return a.Flush(ctx)
	}

	return nil
}

// Flush bulk-loads the buffered rows into the destination, then rotates to a
// fresh, empty buffer with the same schema. Rows are ingested exactly once:
// a manual Flush followed by Close will not replay them.
//
// Close is the normal path; call Flush directly only when rows must become
// visible in the destination before the appender is done.
func (a *Appender) Flush(ctx context.Context) error {
	if a.closed {
		return ErrAppendAfterClose
	}

	if err := a.flushBuffer(ctx); err != nil {
		return err
	}

	fresh, err := staging.New(ctx, a.cfg.Dir, a.schema)
	if err != nil {
		return fmt.Errorf("appender: rotate buffer for %s: %w", a.cfg.Table, err)
	}
	old := a.buf
	a.buf = fresh

	if err := old.Close(ctx); err != nil {
		return err
	}
	return old.Remove()
}

// Close performs the final flush, disposes of the staging buffer, and marks
// the appender closed. Calling Close twice returns ErrDoubleClose.
func (a *Appender) Close(ctx context.Context) error {
	if a.closed {
		return ErrDoubleClose
	}

	if err := a.flushBuffer(ctx); err != nil {
		return err
	}
	if err := a.buf.Close(ctx); err != nil {
		return err
	}
	if err := a.buf.Remove(); err != nil {
		return err
	}
	a.closed = true

	return nil
}

// With runs fn with a freshly constructed appender and closes it on every
// exit path, including a panic inside fn. This is the scoped-acquisition
// form: it guarantees the final flush even when fn fails midway.
//
// A close performed by fn itself is tolerated; any other close failure is
// returned when fn succeeded.
func With(ctx context.Context, dest Destination, cfg Config, fn func(*Appender) error) (err error) {
	a, nerr := New(ctx, dest, cfg)
	if nerr != nil {
		return nerr
	}

	defer func() {
		cerr := a.Close(ctx)
		if errors.Is(cerr, ErrDoubleClose) {
			return
		}
		if err == nil {
			err = cerr
		}
	}()

	return fn(a)
}

// flushBuffer commits the staging store and bulk-scans it into the
// destination. An empty buffer is skipped entirely. On ingest failure the
// committed staging file stays on disk with its path in the error, so the
// rows are recoverable by hand; there is no automatic retry.
func (a *Appender) flushBuffer(ctx context.Context) error {
	if err := a.buf.Commit(ctx); err != nil {
		return err
	}
	rows := a.buf.RowCount()
	if rows == 0 {
		return nil
	}

	start := time.Now()
	err := a.dest.Ingest(ctx, a.cfg.Schema, a.cfg.Table, a.buf.Path())
	metrics.RecordFlush(a.cfg.Table, rows, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("appender: bulk ingest %s into %s.%s: %w",
			a.buf.Path(), a.cfg.Schema, a.cfg.Table, err)
	}

	log.Printf("appender: flush table=%s.%s rows=%d took=%s",
		a.cfg.Schema, a.cfg.Table, rows, time.Since(start).Truncate(time.Millisecond))

	return nil
}
