// Command csv2duck streams a CSV file into an existing DuckDB table through
// the buffered appender.
//
// The destination table must already exist; its introspected schema drives
// the staging layout, and CSV fields are passed through positionally (DuckDB
// casts the text on ingest). Empty CSV fields become NULL.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"duckstage/internal/appender"
	"duckstage/internal/duck"
	"duckstage/internal/metrics"
	"duckstage/internal/metrics/prompush"
)

var (
	flagDB          = flag.String("db", "", "DuckDB database file (required)")
	flagSchema      = flag.String("schema", "main", "Destination schema name")
	flagTable       = flag.String("table", "", "Destination table name (required; table must exist)")
	flagCSV         = flag.String("csv", "-", "CSV file to load; '-' reads stdin")
	flagThreshold   = flag.Int("threshold", appender.DefaultFlushThreshold, "Buffered row count that triggers a flush into DuckDB")
	flagEncoding    = flag.String("encoding", "utf-8", "CSV input encoding: utf-8|latin-1|windows-1252")
	flagSkipHeader  = flag.Bool("skip-header", true, "Skip the first CSV record")
	flagPushgateway = flag.String("pushgateway", "", "Prometheus Pushgateway URL for run metrics (optional)")
)

func main() {
	flag.Parse()
	if *flagDB == "" || *flagTable == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background()); err != nil {
		log.Fatalf("csv2duck: %v", err)
	}
}

func run(ctx context.Context) error {
	if *flagPushgateway != "" {
		backend, err := prompush.NewBackend("csv2duck", *flagPushgateway)
		if err != nil {
			return err
		}
		metrics.SetBackend(backend)
		defer func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("csv2duck: push metrics: %v", err)
			}
		}()
	}

	in := os.Stdin
	if *flagCSV != "-" {
		f, err := os.Open(*flagCSV)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	decoded, err := decodeReader(in, *flagEncoding)
	if err != nil {
		return err
	}

	db, err := duck.Open(*flagDB)
	if err != nil {
		return err
	}
	defer db.Close()

	dest, err := duck.NewDestination(ctx, db)
	if err != nil {
		return err
	}
	defer dest.Close()

	g, ctx := errgroup.WithContext(ctx)
	rows := make(chan []any, 1024)

	// Producer: parse CSV records into rows.
	g.Go(func() error {
		defer close(rows)

		r := csv.NewReader(decoded)
		first := true
		for {
			rec, err := r.Read()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read csv: %w", err)
			}
			if first && *flagSkipHeader {
				first = false
				continue
			}
			first = false

			select {
			case rows <- rowFromRecord(rec):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	// Consumer: the appender stays confined to this goroutine.
	g.Go(func() error {
		cfg := appender.Config{
			Schema:         *flagSchema,
			Table:          *flagTable,
			FlushThreshold: *flagThreshold,
		}
		var total int64
		err := appender.With(ctx, dest, cfg, func(a *appender.Appender) error {
			for row := range rows {
				if err := a.AppendRow(ctx, row); err != nil {
					return err
				}
				total++
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Printf("csv2duck: loaded rows=%d table=%s.%s", total, *flagSchema, *flagTable)
		return nil
	})

	return g.Wait()
}

// rowFromRecord turns one CSV record into an appender row. Empty fields map
// to NULL; everything else passes through as text for DuckDB to cast on
// ingest.
func rowFromRecord(rec []string) []any {
	row := make([]any, len(rec))
	for i, f := range rec {
		if f == "" {
			row[i] = nil
		} else {
			row[i] = f
		}
	}
	return row
}

// decodeReader wraps r so the CSV parser always sees UTF-8.
func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch encoding {
	case "", "utf-8", "utf8":
		return r, nil
	case "latin-1", "latin1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", encoding)
}
