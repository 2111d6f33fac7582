package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

/*
Test helpers
*/

func testSchema() Schema {
	return Schema{
		Table:   "events",
		Columns: []string{"id", "name", "score"},
		Types:   []string{"INTEGER", "TEXT", "REAL"},
	}
}

func newBuffer(tb testing.TB, schema Schema) *Buffer {
	tb.Helper()
	b, err := New(context.Background(), tb.TempDir(), schema)
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	tb.Cleanup(func() {
		_ = b.Close(context.Background())
		_ = b.Remove()
	})
	return b
}

func mustAppend(tb testing.TB, b *Buffer, row []any) {
	tb.Helper()
	if err := b.Append(context.Background(), row); err != nil {
		tb.Fatalf("Append(%v): %v", row, err)
	}
}

// readAll opens the staging file independently (the way the destination's
// bulk scan would) and returns every row of the given table.
func readAll(tb testing.TB, path, table string) [][]any {
	tb.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		tb.Fatalf("open staging file %s: %v", path, err)
	}
	defer db.Close()

	rows, err := db.Query(fmt.Sprintf(`SELECT * FROM %q`, table))
	if err != nil {
		tb.Fatalf("select from %s: %v", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		tb.Fatalf("columns: %v", err)
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			tb.Fatalf("scan: %v", err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		tb.Fatalf("rows: %v", err)
	}
	return out
}

/*
Unit tests
*/

// TestAppendCommitRoundTrip verifies appended rows become visible in the
// backing file after Commit, column for column.
func TestAppendCommitRoundTrip(t *testing.T) {
	t.Parallel()

	b := newBuffer(t, testSchema())
	ctx := context.Background()

	mustAppend(t, b, []any{1, "alpha", 1.5})
	mustAppend(t, b, []any{2, "beta", 2.5})
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := readAll(t, b.Path(), b.Table())
	if len(got) != 2 {
		t.Fatalf("rows after commit: got %d want 2", len(got))
	}
	if got[0][1] != "alpha" || got[1][1] != "beta" {
		t.Fatalf("row values: got %#v", got)
	}
	if b.RowCount() != 2 {
		t.Fatalf("RowCount: got %d want 2", b.RowCount())
	}
}

// TestAppendAfterCommit checks the buffer keeps accepting rows after a
// commit (a fresh transaction is opened under the hood).
func TestAppendAfterCommit(t *testing.T) {
	t.Parallel()

	b := newBuffer(t, testSchema())
	ctx := context.Background()

	mustAppend(t, b, []any{1, "a", 0.0})
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	mustAppend(t, b, []any{2, "b", 0.0})
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	if got := readAll(t, b.Path(), b.Table()); len(got) != 2 {
		t.Fatalf("rows: got %d want 2", len(got))
	}
}

// TestColumnCountError verifies arity mismatches fail with the typed error
// and never advance RowCount.
func TestColumnCountError(t *testing.T) {
	t.Parallel()

	b := newBuffer(t, testSchema())
	ctx := context.Background()

	err := b.Append(ctx, []any{1, "too-short"})
	var cce *ColumnCountError
	if !errors.As(err, &cce) {
		t.Fatalf("Append short row: got %v, want ColumnCountError", err)
	}
	if cce.Expected != 3 || cce.Actual != 2 {
		t.Fatalf("ColumnCountError fields: got %+v", cce)
	}
	if b.RowCount() != 0 {
		t.Fatalf("RowCount after failed append: got %d want 0", b.RowCount())
	}

	// The buffer stays usable; a corrected row goes through.
	mustAppend(t, b, []any{1, "ok", 3.0})
	if b.RowCount() != 1 {
		t.Fatalf("RowCount after corrected append: got %d want 1", b.RowCount())
	}
}

// TestValueAdaptation checks timestamps, UUIDs, decimals, and lists
// serialize to their deterministic textual forms.
func TestValueAdaptation(t *testing.T) {
	t.Parallel()

	schema := Schema{
		Table:   "typed",
		Columns: []string{"ts", "uid", "amount", "tags", "nums", "raw"},
		Types:   []string{"TEXT", "TEXT", "TEXT", "TEXT", "TEXT", "BLOB"},
	}
	b := newBuffer(t, schema)
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 12, 30, 45, 0, time.FixedZone("CET", 3600))
	uid := uuid.MustParse("4bf4e7ab-3c79-43f2-a9ea-b36e31a4a61a")
	amount := decimal.RequireFromString("1.11")

	mustAppend(t, b, []any{
		ts,
		uid,
		amount,
		[]string{"red", "green"},
		[]int{1, 2, 3},
		[]byte{0xde, 0xad},
	})
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rows := readAll(t, b.Path(), b.Table())
	if len(rows) != 1 {
		t.Fatalf("rows: got %d want 1", len(rows))
	}
	row := rows[0]

	if got := row[0]; got != "2024-03-01T11:30:45Z" {
		t.Errorf("timestamp: got %v, want UTC ISO-8601", got)
	}
	if got := row[1]; got != "4bf4e7ab3c7943f2a9eab36e31a4a61a" {
		t.Errorf("uuid: got %v, want 32-digit hex", got)
	}
	if got := row[2]; got != "1.11" {
		t.Errorf("decimal: got %v, want exact string", got)
	}
	if got := row[3]; got != "[red, green]" {
		t.Errorf("string list: got %v", got)
	}
	if got := row[4]; got != "[1, 2, 3]" {
		t.Errorf("int list: got %v", got)
	}
	if got, ok := row[5].([]byte); !ok || len(got) != 2 {
		t.Errorf("blob: got %#v, want 2-byte blob", row[5])
	}
}

// TestRemoveIdempotent verifies the backing file is deleted exactly once and
// that a second Remove, or a Remove after the file already vanished, is a
// no-op success.
func TestRemoveIdempotent(t *testing.T) {
	t.Parallel()

	b := newBuffer(t, testSchema())
	ctx := context.Background()

	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(b.Path()); !os.IsNotExist(err) {
		t.Fatalf("staging file still present after Remove: %v", err)
	}
	if err := b.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}

	// Remove on a never-removed buffer whose file disappeared externally.
	b2 := newBuffer(t, testSchema())
	if err := b2.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := os.Remove(b2.Path()); err != nil {
		t.Fatalf("external remove: %v", err)
	}
	if err := b2.Remove(); err != nil {
		t.Fatalf("Remove after external delete: %v", err)
	}
}

// TestCloseKeepsFile confirms Close releases the handle without deleting the
// file: disposal is Remove's job.
func TestCloseKeepsFile(t *testing.T) {
	t.Parallel()

	b := newBuffer(t, testSchema())
	ctx := context.Background()

	mustAppend(t, b, []any{1, "kept", 0.0})
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Close committed; the file is intact and readable.
	if got := readAll(t, b.Path(), b.Table()); len(got) != 1 {
		t.Fatalf("rows in closed file: got %d want 1", len(got))
	}
}

// TestNewRejectsBadSchema covers the structural schema invariants.
func TestNewRejectsBadSchema(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		schema Schema
	}{
		{"empty table", Schema{Columns: []string{"a"}, Types: []string{"TEXT"}}},
		{"no columns", Schema{Table: "t"}},
		{"mismatched types", Schema{Table: "t", Columns: []string{"a", "b"}, Types: []string{"TEXT"}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(context.Background(), t.TempDir(), c.schema); err == nil {
				t.Fatalf("New accepted invalid schema %+v", c.schema)
			}
		})
	}
}
