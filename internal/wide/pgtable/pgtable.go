// Package pgtable stores a column-family table in Postgres as one row per
// cell in the wide_cells table. Scans read cells in (row_key, qualifier)
// order and fold consecutive cells into rows.
package pgtable

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/store"
	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

const scanQuery = `
    SELECT row_key, qualifier, value
    FROM wide_cells
    WHERE table_name = $1
      AND ($2::bytea IS NULL OR row_key >= $2)
      AND ($3::bytea IS NULL OR row_key < $3)
    ORDER BY row_key, qualifier
`

const putQuery = `
    INSERT INTO wide_cells (table_name, row_key, qualifier, value)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (table_name, row_key, qualifier)
    DO UPDATE SET value = EXCLUDED.value
`

// Table is one open connection pool bound to a logical table name.
type Table struct {
	name  string
	pool  *pgxpool.Pool
	owned *store.Store
}

// NewConnector returns a connector that opens a fresh pool on every Open, so
// reacquiring a handle drops every connection of the previous pool.
func NewConnector(dbURL, tableName string, opts store.Options) wide.Connector {
	return wide.ConnectorFunc(func(ctx context.Context) (wide.Table, error) {
		st, err := store.New(ctx, dbURL, opts)
		if err != nil {
			return nil, err
		}
		return &Table{name: tableName, pool: st.Pool(), owned: st}, nil
	})
}

// Wrap binds an existing pool to tableName. Close leaves the pool open.
func Wrap(pool *pgxpool.Pool, tableName string) *Table {
	return &Table{name: tableName, pool: pool}
}

// Scan streams rows with start <= key < stop.
func (t *Table) Scan(ctx context.Context, start, stop []byte) (wide.Scanner, error) {
	rows, err := t.pool.Query(ctx, scanQuery, t.name, start, stop)
	if err != nil {
		return nil, fmt.Errorf("pgtable: scan %s: %w", t.name, err)
	}
	return &scanner{rows: rows}, nil
}

// Put upserts every column of row.
func (t *Table) Put(ctx context.Context, row wide.Row) error {
	batch := &pgx.Batch{}
	for qualifier, value := range row.Columns {
		batch.Queue(putQuery, t.name, row.Key, qualifier, value)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := t.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgtable: put %s: %w", row.Key, err)
	}
	return nil
}

// Close releases the pool if this table opened it.
func (t *Table) Close() error {
	if t.owned != nil {
		t.owned.Close()
	}
	return nil
}

type cell struct {
	key       []byte
	qualifier string
	value     []byte
}

type scanner struct {
	rows    pgx.Rows
	pending *cell
	current wide.Row
	done    bool
	err     error
}

func (s *scanner) Next(_ context.Context) bool {
	if s.done {
		return false
	}

	var row wide.Row
	if s.pending != nil {
		row = wide.Row{Key: s.pending.key, Columns: map[string][]byte{s.pending.qualifier: s.pending.value}}
		s.pending = nil
	}

	for s.rows.Next() {
		var c cell
		if err := s.rows.Scan(&c.key, &c.qualifier, &c.value); err != nil {
			s.err = fmt.Errorf("pgtable: decode cell: %w", err)
			s.finish()
			return false
		}
		switch {
		case row.Key == nil:
			row = wide.Row{Key: c.key, Columns: map[string][]byte{c.qualifier: c.value}}
		case bytes.Equal(row.Key, c.key):
			row.Columns[c.qualifier] = c.value
		default:
			s.pending = &c
			s.current = row
			return true
		}
	}

	s.finish()
	if err := s.rows.Err(); err != nil {
		s.err = fmt.Errorf("pgtable: scan: %w", err)
		return false
	}
	if row.Key == nil {
		return false
	}
	s.current = row
	return true
}

func (s *scanner) finish() {
	s.done = true
	s.rows.Close()
}

func (s *scanner) Row() wide.Row { return s.current }

func (s *scanner) Err() error { return s.err }

func (s *scanner) Close() error {
	s.rows.Close()
	return nil
}
