package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/metrics"
	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

// Options configures the repositories built by New.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Collector
	// MaxRetries is the total attempts per rating query; <= 0 uses the retry
	// package default.
	MaxRetries int
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Movies  *MoviesRepository
	Ratings *RatingsRepository
}

// New constructs a Repository with movies in Postgres and ratings in the
// table behind handle. The handle must be acquired before the first query.
func New(pool *pgxpool.Pool, handle *wide.Handle, opts Options) *Repository {
	return &Repository{
		Movies:  NewMovies(pool),
		Ratings: NewRatings(handle, opts),
	}
}

// NewMovies allows constructing the movie repository directly from a pgx pool.
func NewMovies(pool *pgxpool.Pool) *MoviesRepository {
	return &MoviesRepository{pool: pool}
}

// NewRatings builds a ratings repository over handle.
func NewRatings(handle *wide.Handle, opts Options) *RatingsRepository {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatingsRepository{
		handle:     handle,
		logger:     logger.Named("ratings"),
		metrics:    opts.Metrics,
		maxRetries: opts.MaxRetries,
	}
}
