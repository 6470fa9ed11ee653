package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	httpserver "github.com/Clark-Hu/movie-ratings/internal/http"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
	"github.com/Clark-Hu/movie-ratings/internal/metrics"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/seed"
	"github.com/Clark-Hu/movie-ratings/internal/service"
	"github.com/Clark-Hu/movie-ratings/internal/store"
	"github.com/Clark-Hu/movie-ratings/internal/wide"
	"github.com/Clark-Hu/movie-ratings/internal/wide/backend"
	"github.com/Clark-Hu/movie-ratings/internal/wide/memtable"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", "movies-api"))

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, backend.StoreOptions(cfg, logger))
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(reg)
	if err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "movies",
		Subsystem: "db",
		Name:      "pool_total_conns",
		Help:      "Open connections in the movies pool.",
	}, func() float64 {
		if stat := st.Stats(); stat != nil {
			return float64(stat.TotalConns())
		}
		return 0
	}))

	var mem *memtable.Store
	if cfg.RatingsBackend == config.BackendMemory {
		mem = memtable.New()
		if cfg.RatingsSeedFile != "" {
			if err := seedMemory(ctx, mem, cfg.RatingsSeedFile); err != nil {
				logger.Fatal("seed ratings", zap.String("file", cfg.RatingsSeedFile), zap.Error(err))
			}
			logger.Info("ratings seeded", zap.Int("rows", mem.Len()))
		}
	}

	connector, err := backend.Connector(cfg, mem, logger)
	if err != nil {
		logger.Fatal("ratings backend", zap.Error(err))
	}
	handle := wide.NewHandle(connector, wide.WithLogger(logger.Named("table")), wide.WithAcquireObserver(collector))
	if _, err := handle.Acquire(dbCtx); err != nil {
		logger.Fatal("open ratings table", zap.String("backend", cfg.RatingsBackend), zap.Error(err))
	}
	defer handle.Close()

	repo := repository.New(st.Pool(), handle, repository.Options{
		Logger:     logger,
		Metrics:    collector,
		MaxRetries: cfg.ScanMaxRetries,
	})
	svc := service.New(repo.Movies, repo.Ratings, logger)
	server := httpserver.New(cfg, st, svc, reg, logger.Named("http"))

	logger.Info("listening", zap.String("port", cfg.Port), zap.String("ratings_backend", cfg.RatingsBackend))

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("graceful shutdown error", zap.Error(err))
	}
}

func seedMemory(ctx context.Context, mem *memtable.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = seed.LoadRatingsCSV(ctx, f, mem)
	return err
}
