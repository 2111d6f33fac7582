// Package duck implements the appender's destination contract on DuckDB.
//
// It covers the three things the appender needs from the destination engine:
// schema introspection through information_schema, a session pinned to UTC so
// timestamps mean the same thing in DuckDB and in the SQLite staging files,
// and the bulk-ingest primitive (sqlite_scan) that reads an entire staging
// file as one relation and inserts it in a single statement.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"duckstage/internal/appender"

	// DuckDB driver.
	_ "github.com/marcboeker/go-duckdb/v2"
)

// Open opens a DuckDB database at path ("" for in-memory) via database/sql.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("duck: open %s: %w", path, err)
	}
	return db, nil
}

// Destination adapts one DuckDB session to the appender.Destination contract.
//
// It pins a single connection out of the pool so session-level settings
// (the UTC time zone) hold for every statement it runs. The underlying
// *sql.DB is borrowed: Close returns the pinned connection to the pool and
// never closes the database itself.
type Destination struct {
	conn *sql.Conn
}

var _ appender.Destination = (*Destination)(nil)

// NewDestination pins a connection from db and configures its session to use
// UTC. Without that, DuckDB would interpret the staging store's timestamp
// text in the session's local zone and the two engines would disagree.
func NewDestination(ctx context.Context, db *sql.DB) (*Destination, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("duck: acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SET TimeZone='UTC'"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("duck: set session time zone: %w", err)
	}
	return &Destination{conn: conn}, nil
}

// Columns returns the ordered column names and native DuckDB types of
// schema.table. A missing table yields an empty slice, not an error; the
// appender turns that into TableNotFoundError.
func (d *Destination) Columns(ctx context.Context, schema, table string) ([]appender.Column, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT column_name, data_type
		   FROM information_schema.columns
		  WHERE table_schema = ? AND table_name = ?
		  ORDER BY ordinal_position`,
		schema, table,
	)
	if err != nil {
		return nil, fmt.Errorf("duck: introspect %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []appender.Column
	for rows.Next() {
		var c appender.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("duck: scan column of %s.%s: %w", schema, table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duck: introspect %s.%s: %w", schema, table, err)
	}
	return cols, nil
}

// Ingest bulk-loads the entire staging file into schema.table in one
// statement. sqlite_scan reads the staging table (which carries the
// destination table name) as a single relation; database/sql autocommit
// makes the insert durable before Ingest returns.
func (d *Destination) Ingest(ctx context.Context, schema, table, stagingPath string) error {
	stmt := fmt.Sprintf("INSERT INTO %s SELECT * FROM sqlite_scan(?, ?)", quoteFQN(schema, table))
	if _, err := d.conn.ExecContext(ctx, stmt, stagingPath, table); err != nil {
		return fmt.Errorf("duck: ingest %s into %s.%s: %w", stagingPath, schema, table, err)
	}
	return nil
}

// Close returns the pinned connection to the pool. The caller's *sql.DB
// stays open; its lifecycle belongs to the caller.
func (d *Destination) Close() error {
	return d.conn.Close()
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func quoteFQN(schema, table string) string {
	if schema == "" {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}
