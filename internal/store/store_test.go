package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-ratings/internal/store"
	"github.com/Clark-Hu/movie-ratings/internal/store/storetest"
)

func TestStore_NewHealthAndClose(t *testing.T) {
	db := storetest.New(t, "store_test")

	st, err := store.New(context.Background(), db.URL, store.Options{
		MaxConns:               4,
		MinConns:               1,
		ConnTimeout:            5 * time.Second,
		StatementCacheCapacity: 32,
	})
	require.NoError(t, err)

	require.NoError(t, st.HealthCheck(context.Background()))
	require.NotNil(t, st.Stats())
	assert.Equal(t, int32(4), st.Stats().MaxConns())

	st.Close()
	assert.Error(t, st.HealthCheck(context.Background()))
}

func TestStore_NewRejectsBadURL(t *testing.T) {
	_, err := store.New(context.Background(), "postgres://localhost:badport/db", store.Options{})
	assert.ErrorContains(t, err, "parse db url")
}

func TestStore_NilHealthCheck(t *testing.T) {
	var st *store.Store
	assert.Error(t, st.HealthCheck(context.Background()))
	assert.Nil(t, st.Stats())
	st.Close()
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := storetest.New(t, "store_test")

	n, err := store.Migrate(context.Background(), db.Pool, storetest.MigrationsDir())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var tables int
	err = db.Pool.QueryRow(context.Background(),
		`SELECT count(*) FROM information_schema.tables WHERE table_name IN ('movies','wide_cells')`).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)

	_, err = store.Migrate(context.Background(), db.Pool, t.TempDir())
	assert.ErrorContains(t, err, "no migration files")
}
