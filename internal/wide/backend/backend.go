// Package backend selects the ratings table implementation named in the
// configuration.
package backend

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/store"
	"github.com/Clark-Hu/movie-ratings/internal/wide"
	"github.com/Clark-Hu/movie-ratings/internal/wide/dynamotable"
	"github.com/Clark-Hu/movie-ratings/internal/wide/memtable"
	"github.com/Clark-Hu/movie-ratings/internal/wide/pgtable"
	"github.com/Clark-Hu/movie-ratings/internal/wide/redistable"
)

// StoreOptions maps the database settings of cfg to pool options.
func StoreOptions(cfg config.Config, logger *zap.Logger) store.Options {
	return store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}
}

// Connector returns the connector for cfg.RatingsBackend. mem backs the
// memory backend and may be nil otherwise.
func Connector(cfg config.Config, mem *memtable.Store, logger *zap.Logger) (wide.Connector, error) {
	switch cfg.RatingsBackend {
	case config.BackendMemory:
		if mem == nil {
			mem = memtable.New()
		}
		return mem.Connector(), nil
	case config.BackendPostgres:
		opts := StoreOptions(cfg, logger)
		// The ratings pool is separate from the movies pool and smaller.
		opts.MinConns = 0
		return pgtable.NewConnector(cfg.DBURL, cfg.RatingsTable, opts), nil
	case config.BackendRedis:
		return redistable.NewConnector(cfg.RedisURL, cfg.RatingsTable, cfg.ScanPageSize), nil
	case config.BackendDynamoDB:
		return dynamotable.NewConnector(cfg.AWSRegion, cfg.DynamoDBEndpoint, cfg.DynamoDBTable, cfg.ScanPageSize), nil
	default:
		return nil, fmt.Errorf("unknown ratings backend %q", cfg.RatingsBackend)
	}
}
