// Package redistable keeps a column-family table in Redis: a sorted set of
// row keys, all with score 0 so ZRANGEBYLEX orders them bytewise, plus one
// hash per row holding its qualified columns.
package redistable

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

const defaultPageSize = 500

// Client is the subset of go-redis used by Table.
type Client interface {
	ZRangeByLex(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// Table reads rows of one logical table.
type Table struct {
	client   Client
	name     string
	pageSize int64
}

// New wraps an existing client. pageSize <= 0 uses the default.
func New(client Client, tableName string, pageSize int) *Table {
	size := int64(pageSize)
	if size <= 0 {
		size = defaultPageSize
	}
	return &Table{client: client, name: tableName, pageSize: size}
}

// NewConnector dials a new client on every Open and checks it with PING.
func NewConnector(url, tableName string, pageSize int) wide.Connector {
	return wide.ConnectorFunc(func(ctx context.Context) (wide.Table, error) {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		return New(rdb, tableName, pageSize), nil
	})
}

func (t *Table) indexKey() string {
	return t.name + ":keys"
}

func (t *Table) rowKey(key string) string {
	return t.name + ":row:" + key
}

// Scan pages through the key index with ZRANGEBYLEX and loads each row hash.
func (t *Table) Scan(_ context.Context, start, stop []byte) (wide.Scanner, error) {
	lo, hi := "-", "+"
	if start != nil {
		lo = "[" + string(start)
	}
	if stop != nil {
		hi = "(" + string(stop)
	}
	return &scanner{table: t, lo: lo, hi: hi}, nil
}

// Put indexes the row key and writes its columns.
func (t *Table) Put(ctx context.Context, row wide.Row) error {
	key := string(row.Key)
	if err := t.client.ZAdd(ctx, t.indexKey(), redis.Z{Score: 0, Member: key}).Err(); err != nil {
		return fmt.Errorf("redistable: zadd failed: %w", err)
	}
	if len(row.Columns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(row.Columns)*2)
	for q, v := range row.Columns {
		values = append(values, q, string(v))
	}
	if err := t.client.HSet(ctx, t.rowKey(key), values...).Err(); err != nil {
		return fmt.Errorf("redistable: hset failed: %w", err)
	}
	return nil
}

// Close closes the client.
func (t *Table) Close() error {
	return t.client.Close()
}

type scanner struct {
	table   *Table
	lo, hi  string
	offset  int64
	page    []string
	pos     int
	current wide.Row
	done    bool
	err     error
}

func (s *scanner) Next(ctx context.Context) bool {
	if s.done {
		return false
	}
	if s.pos >= len(s.page) {
		if !s.fetch(ctx) {
			return false
		}
	}

	key := s.page[s.pos]
	s.pos++

	fields, err := s.table.client.HGetAll(ctx, s.table.rowKey(key)).Result()
	if err != nil {
		s.fail(fmt.Errorf("redistable: hgetall failed: %w", err))
		return false
	}
	columns := make(map[string][]byte, len(fields))
	for q, v := range fields {
		columns[q] = []byte(v)
	}
	s.current = wide.Row{Key: []byte(key), Columns: columns}
	return true
}

func (s *scanner) fetch(ctx context.Context) bool {
	keys, err := s.table.client.ZRangeByLex(ctx, s.table.indexKey(), &redis.ZRangeBy{
		Min:    s.lo,
		Max:    s.hi,
		Offset: s.offset,
		Count:  s.table.pageSize,
	}).Result()
	if err != nil {
		s.fail(fmt.Errorf("redistable: zrangebylex failed: %w", err))
		return false
	}
	if len(keys) == 0 {
		s.done = true
		return false
	}
	s.offset += int64(len(keys))
	s.page = keys
	s.pos = 0
	return true
}

func (s *scanner) fail(err error) {
	s.err = err
	s.done = true
}

func (s *scanner) Row() wide.Row { return s.current }

func (s *scanner) Err() error { return s.err }

func (s *scanner) Close() error {
	s.done = true
	return nil
}
