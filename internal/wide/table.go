// Package wide defines the contract for a sparse column-family table keyed by
// byte-string row keys, and a handle that can discard and reacquire a dead
// connection to one table.
package wide

import (
	"context"
	"errors"
)

// ErrNotInitialized is returned when a handle is used before Acquire.
var ErrNotInitialized = errors.New("wide: table handle not initialized")

// Row is one record: its key and the qualified columns ("family:qualifier")
// present on it.
type Row struct {
	Key     []byte
	Columns map[string][]byte
}

// Column returns the value stored under a qualified column name.
func (r Row) Column(name string) ([]byte, bool) {
	v, ok := r.Columns[name]
	return v, ok
}

// Scanner iterates a scan lazily. Callers must Close it.
type Scanner interface {
	Next(ctx context.Context) bool
	Row() Row
	Err() error
	Close() error
}

// Table is a connection to one table.
//
// Scan visits rows with start <= key < stop. A nil start or stop leaves that
// side unbounded. Ordered backends yield rows in byte-lexicographic key order.
type Table interface {
	Scan(ctx context.Context, start, stop []byte) (Scanner, error)
	Close() error
}

// Writer is implemented by backends that accept rows for seeding.
type Writer interface {
	Put(ctx context.Context, row Row) error
}

// Connector opens a new connection to a table.
type Connector interface {
	Open(ctx context.Context) (Table, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Table, error)

// Open calls f(ctx).
func (f ConnectorFunc) Open(ctx context.Context) (Table, error) {
	return f(ctx)
}

// SliceScanner serves rows from a materialized slice. Backends that fetch a
// page at a time use it for the page they hold.
type SliceScanner struct {
	rows []Row
	pos  int
	err  error
}

// NewSliceScanner returns a scanner over rows.
func NewSliceScanner(rows []Row) *SliceScanner {
	return &SliceScanner{rows: rows, pos: -1}
}

func (s *SliceScanner) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.pos++
	return s.pos < len(s.rows)
}

func (s *SliceScanner) Row() Row {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return Row{}
	}
	return s.rows[s.pos]
}

func (s *SliceScanner) Err() error { return s.err }

func (s *SliceScanner) Close() error { return nil }
