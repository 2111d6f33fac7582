package staging

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	// SQLite driver for the staging files.
	_ "modernc.org/sqlite"
)

// Buffer is one bounded accumulation window: a file-backed SQLite table that
// absorbs single-row inserts cheaply until the appender bulk-scans the whole
// file into the destination.
//
// A Buffer is exclusively owned by one appender and is not safe for
// concurrent use. Appends run inside a single open transaction; nothing is
// durable until Commit.
type Buffer struct {
	path   string
	schema Schema

	db     *sql.DB
	tx     *sql.Tx
	insert *sql.Stmt

	rowCount int
	closed   bool
	removed  bool
}

// New provisions an empty staging store for the given schema in dir (the OS
// temp directory when dir is empty). The backing file gets a unique name, and
// a stale table of the same logical name is dropped before the mirrored table
// is created.
func New(ctx context.Context, dir string, schema Schema) (*Buffer, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, fmt.Sprintf("staging_buffer_%s.db", uuid.NewString()))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("staging: open store %s: %w", path, err)
	}

	b := &Buffer{path: path, schema: schema, db: db}
	if err := b.createTable(ctx); err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := b.begin(ctx); err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, err
	}

	// Leak detection only: deterministic cleanup happens in Remove, via the
	// appender's rotation/close paths. Finalizer timing is undefined, so
	// nothing time-sensitive may depend on it.
	runtime.SetFinalizer(b, finalizeBuffer)

	return b, nil
}

// Path returns the location of the backing SQLite file.
func (b *Buffer) Path() string { return b.path }

// Table returns the staging table name.
func (b *Buffer) Table() string { return b.schema.Table }

// RowCount reports how many rows have been appended since creation. It is
// incremented exactly once per successful append and never decremented.
func (b *Buffer) RowCount() int { return b.rowCount }

// Append inserts one row, positionally matching the schema's column order.
// A row whose length differs from the column count fails with
// ColumnCountError and leaves the buffer state untouched.
func (b *Buffer) Append(ctx context.Context, row []any) error {
	if len(row) != len(b.schema.Columns) {
		return &ColumnCountError{Expected: len(b.schema.Columns), Actual: len(row)}
	}

	if _, err := b.insert.ExecContext(ctx, adaptRow(row)...); err != nil {
		return fmt.Errorf("staging: insert into %s: %w", b.schema.Table, err)
	}
	b.rowCount++

	return nil
}

// Commit durably persists all pending inserts and reopens a transaction so
// further appends remain possible. The appender calls this before every bulk
// scan so the destination sees a consistent, fully written file.
func (b *Buffer) Commit(ctx context.Context) error {
	if b.tx == nil {
		return nil
	}

	_ = b.insert.Close()
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("staging: commit %s: %w", b.schema.Table, err)
	}
	b.tx = nil
	b.insert = nil

	return b.begin(ctx)
}

// Close commits pending inserts and releases the SQLite handle. It does not
// delete the backing file; disposal is a separate concern (Remove).
func (b *Buffer) Close(ctx context.Context) error {
	if b.closed {
		return nil
	}

	if b.tx != nil {
		_ = b.insert.Close()
		if err := b.tx.Commit(); err != nil {
			return fmt.Errorf("staging: commit %s on close: %w", b.schema.Table, err)
		}
		b.tx = nil
		b.insert = nil
	}
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("staging: close store %s: %w", b.path, err)
	}
	b.closed = true

	return nil
}

// Remove deletes the backing file. It is idempotent and treats an already
// missing file as success, so rotation, explicit close, and the finalizer
// safety net can all call it without coordination.
func (b *Buffer) Remove() error {
	if b.removed {
		return nil
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("staging: remove %s: %w", b.path, err)
	}
	b.removed = true
	runtime.SetFinalizer(b, nil)

	return nil
}

func (b *Buffer) createTable(ctx context.Context) error {
	table := quoteIdent(b.schema.Table)

	if _, err := b.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("staging: drop stale table %s: %w", b.schema.Table, err)
	}

	cols := make([]string, len(b.schema.Columns))
	for i, name := range b.schema.Columns {
		cols[i] = quoteIdent(name) + " " + b.schema.Types[i]
	}
	create := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(cols, ",\n  "))
	if _, err := b.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("staging: create table %s: %w", b.schema.Table, err)
	}

	return nil
}

// begin opens the insert transaction and prepares the positional INSERT used
// by Append.
func (b *Buffer) begin(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("staging: begin tx for %s: %w", b.schema.Table, err)
	}

	cols := make([]string, len(b.schema.Columns))
	marks := make([]string, len(b.schema.Columns))
	for i, name := range b.schema.Columns {
		cols[i] = quoteIdent(name)
		marks[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(b.schema.Table),
		strings.Join(cols, ", "),
		strings.Join(marks, ", "),
	)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("staging: prepare insert for %s: %w", b.schema.Table, err)
	}

	b.tx = tx
	b.insert = stmt

	return nil
}

// finalizeBuffer is the GC safety net for buffers that were never removed.
// It logs the leak so the missing Close shows up in operation, then deletes
// the file best-effort.
func finalizeBuffer(b *Buffer) {
	if b.removed {
		return
	}
	log.Printf("staging: leaked buffer file %s (missing Close/Remove), deleting", b.path)
	if !b.closed {
		_ = b.db.Close()
	}
	_ = os.Remove(b.path)
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
