// Command ratings-seed loads MovieLens-style CSV files into the configured
// stores: ratings.csv into the ratings backend and movies.csv into Postgres,
// with each movie's average and count computed from the loaded ratings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/seed"
	"github.com/Clark-Hu/movie-ratings/internal/store"
	"github.com/Clark-Hu/movie-ratings/internal/wide"
	"github.com/Clark-Hu/movie-ratings/internal/wide/backend"
)

func main() {
	var (
		ratingsPath = flag.String("ratings", "ratings.csv", "path to the ratings CSV")
		moviesPath  = flag.String("movies", "", "path to the movies CSV; empty skips movies")
		migrations  = flag.String("migrations", "db/migrations", "migrations directory; empty skips migrations")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.RatingsBackend == config.BackendMemory {
		fmt.Fprintln(os.Stderr, "the memory backend is per process; set MOVIES_RATINGS_SEED_FILE on the server instead")
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger, *ratingsPath, *moviesPath, *migrations); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, ratingsPath, moviesPath, migrations string) error {
	st, err := store.New(ctx, cfg.DBURL, backend.StoreOptions(cfg, logger))
	if err != nil {
		return err
	}
	defer st.Close()

	if migrations != "" {
		n, err := store.Migrate(ctx, st.Pool(), migrations)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Int("files", n))
	}

	connector, err := backend.Connector(cfg, nil, logger)
	if err != nil {
		return err
	}
	table, err := connector.Open(ctx)
	if err != nil {
		return fmt.Errorf("open ratings table: %w", err)
	}
	defer table.Close()
	writer, ok := table.(wide.Writer)
	if !ok {
		return fmt.Errorf("backend %s does not accept writes", cfg.RatingsBackend)
	}

	f, err := os.Open(ratingsPath)
	if err != nil {
		return err
	}
	defer f.Close()
	summary, err := seed.LoadRatingsCSV(ctx, f, writer)
	if err != nil {
		return err
	}
	logger.Info("ratings loaded", zap.String("backend", cfg.RatingsBackend), zap.Int("rows", summary.Rows))

	if moviesPath == "" {
		return nil
	}
	mf, err := os.Open(moviesPath)
	if err != nil {
		return err
	}
	defer mf.Close()
	movies, err := seed.ReadMoviesCSV(mf)
	if err != nil {
		return err
	}

	repo := repository.NewMovies(st.Pool())
	for i := range movies {
		summary.Apply(&movies[i])
		if err := repo.Upsert(ctx, movies[i]); err != nil {
			return err
		}
	}
	logger.Info("movies loaded", zap.Int("movies", len(movies)))
	return nil
}
