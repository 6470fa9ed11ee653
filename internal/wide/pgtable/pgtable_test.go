package pgtable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-ratings/internal/store"
	"github.com/Clark-Hu/movie-ratings/internal/store/storetest"
	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

func putRows(t *testing.T, tbl *Table, rows map[string]map[string]string) {
	t.Helper()
	for key, cols := range rows {
		row := wide.Row{Key: []byte(key), Columns: map[string][]byte{}}
		for q, v := range cols {
			row.Columns[q] = []byte(v)
		}
		require.NoError(t, tbl.Put(context.Background(), row))
	}
}

func scanAll(t *testing.T, tbl wide.Table, start, stop []byte) []wide.Row {
	t.Helper()
	sc, err := tbl.Scan(context.Background(), start, stop)
	require.NoError(t, err)
	defer sc.Close()
	var rows []wide.Row
	for sc.Next(context.Background()) {
		rows = append(rows, sc.Row())
	}
	require.NoError(t, sc.Err())
	return rows
}

func TestTable_PutAndScan(t *testing.T) {
	db := storetest.New(t, "wide_test")
	tbl := Wrap(db.Pool, "ratings")
	other := Wrap(db.Pool, "other")

	putRows(t, tbl, map[string]map[string]string{
		"2_1":  {"data:rating": "3"},
		"1_2":  {"data:rating": "4", "data:timestamp": "2021-05-01"},
		"1_1":  {"data:rating": "5", "data:timestamp": "2021-04-01"},
		"10_1": {"data:rating": "1"},
	})
	putRows(t, other, map[string]map[string]string{"1_3": {"data:rating": "2"}})

	rows := scanAll(t, tbl, nil, nil)
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, string(r.Key))
	}
	assert.Equal(t, []string{"10_1", "1_1", "1_2", "2_1"}, keys)

	ts, ok := rows[2].Column("data:timestamp")
	require.True(t, ok)
	assert.Equal(t, "2021-05-01", string(ts))
	assert.Len(t, rows[2].Columns, 2)

	bounded := scanAll(t, tbl, []byte("1_"), []byte("1_~"))
	require.Len(t, bounded, 2)
	assert.Equal(t, "1_1", string(bounded[0].Key))
	assert.Equal(t, "1_2", string(bounded[1].Key))

	assert.Len(t, scanAll(t, other, nil, nil), 1)
	require.NoError(t, tbl.Close())
	assert.Len(t, scanAll(t, tbl, nil, nil), 4, "wrapped pool stays open")
}

func TestTable_PutOverwritesCell(t *testing.T) {
	db := storetest.New(t, "wide_test")
	tbl := Wrap(db.Pool, "ratings")

	putRows(t, tbl, map[string]map[string]string{"1_1": {"data:rating": "2"}})
	putRows(t, tbl, map[string]map[string]string{"1_1": {"data:rating": "4.5"}})

	rows := scanAll(t, tbl, nil, nil)
	require.Len(t, rows, 1)
	v, _ := rows[0].Column("data:rating")
	assert.Equal(t, "4.5", string(v))
}

func TestConnector_OpensOwnPool(t *testing.T) {
	db := storetest.New(t, "wide_test")
	putRows(t, Wrap(db.Pool, "ratings"), map[string]map[string]string{"1_1": {"data:rating": "2"}})

	conn := NewConnector(db.URL, "ratings", store.Options{MaxConns: 2})
	tbl, err := conn.Open(context.Background())
	require.NoError(t, err)
	assert.Len(t, scanAll(t, tbl, nil, nil), 1)
	require.NoError(t, tbl.Close())

	_, err = tbl.Scan(context.Background(), nil, nil)
	assert.Error(t, err, "closed pool rejects scans")
}
