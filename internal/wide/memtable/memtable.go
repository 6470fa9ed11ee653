// Package memtable is an in-process, ordered column-family table used for
// local runs and tests.
package memtable

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

// ErrClosed is returned by a table view after Close.
var ErrClosed = errors.New("memtable: connection closed")

// Store holds rows sorted by key.
type Store struct {
	mu   sync.RWMutex
	rows []wide.Row
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Put inserts or replaces a row, merging columns into an existing row.
func (s *Store) Put(_ context.Context, row wide.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.rows), func(i int) bool {
		return bytes.Compare(s.rows[i].Key, row.Key) >= 0
	})
	if i < len(s.rows) && bytes.Equal(s.rows[i].Key, row.Key) {
		for k, v := range row.Columns {
			s.rows[i].Columns[k] = bytes.Clone(v)
		}
		return nil
	}

	stored := wide.Row{Key: bytes.Clone(row.Key), Columns: make(map[string][]byte, len(row.Columns))}
	for k, v := range row.Columns {
		stored.Columns[k] = bytes.Clone(v)
	}
	s.rows = append(s.rows, wide.Row{})
	copy(s.rows[i+1:], s.rows[i:])
	s.rows[i] = stored
	return nil
}

// Len reports the number of rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Connector returns a connector whose tables read from s.
func (s *Store) Connector() wide.Connector {
	return wide.ConnectorFunc(func(context.Context) (wide.Table, error) {
		return &table{store: s}, nil
	})
}

func (s *Store) snapshot(start, stop []byte) []wide.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := 0
	if start != nil {
		lo = sort.Search(len(s.rows), func(i int) bool {
			return bytes.Compare(s.rows[i].Key, start) >= 0
		})
	}
	hi := len(s.rows)
	if stop != nil {
		hi = sort.Search(len(s.rows), func(i int) bool {
			return bytes.Compare(s.rows[i].Key, stop) >= 0
		})
	}
	if lo >= hi {
		return nil
	}
	out := make([]wide.Row, hi-lo)
	copy(out, s.rows[lo:hi])
	return out
}

type table struct {
	store *Store

	mu     sync.Mutex
	closed bool
}

func (t *table) Scan(_ context.Context, start, stop []byte) (wide.Scanner, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return wide.NewSliceScanner(t.store.snapshot(start, stop)), nil
}

func (t *table) Put(ctx context.Context, row wide.Row) error {
	return t.store.Put(ctx, row)
}

func (t *table) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
