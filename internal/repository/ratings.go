package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/metrics"
	"github.com/Clark-Hu/movie-ratings/internal/retry"
	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

// DefaultUserRatingsLimit bounds FindRatingsByUser when no limit is given.
const DefaultUserRatingsLimit = 10

const (
	opFindByMovie = "find_ratings_by_movie"
	opFindByUser  = "find_ratings_by_user"
	opStats       = "compute_rating_stats"
)

// RatingsRepository answers rating queries by scanning the ratings table.
// The table is keyed by (user, movie) and has no secondary index, so lookups
// by movie read the whole table.
type RatingsRepository struct {
	handle     *wide.Handle
	logger     *zap.Logger
	metrics    *metrics.Collector
	maxRetries int
}

// FindRatingsByMovieFullScan reads EVERY row of the table and keeps those whose
// movie component equals movieID, in scan order. It is O(table size). A limit
// > 0 stops the scan once that many ratings are collected.
func (r *RatingsRepository) FindRatingsByMovieFullScan(ctx context.Context, movieID string, limit int) ([]domain.Rating, error) {
	if !validKeyComponent(movieID) {
		return []domain.Rating{}, nil
	}
	ratings, err := retry.Do(ctx, r.policy(opFindByMovie), func(ctx context.Context) ([]domain.Rating, error) {
		return r.scanByMovie(ctx, opFindByMovie, movieID, limit)
	})
	if err != nil {
		return nil, r.fail(opFindByMovie, "movie_id="+movieID, err)
	}
	return ratings, nil
}

// FindRatingsByUser reads the user's key range [user_, user_~) in key order
// and stops after limit ratings. limit <= 0 uses DefaultUserRatingsLimit.
func (r *RatingsRepository) FindRatingsByUser(ctx context.Context, userID string, limit int) ([]domain.Rating, error) {
	if limit <= 0 {
		limit = DefaultUserRatingsLimit
	}
	if !validKeyComponent(userID) {
		return []domain.Rating{}, nil
	}
	start, stop := userKeyRange(userID)

	ratings, err := retry.Do(ctx, r.policy(opFindByUser), func(ctx context.Context) ([]domain.Rating, error) {
		return r.scan(ctx, opFindByUser, start, stop, limit, func(uid, _ string) bool {
			return uid == userID
		})
	})
	if err != nil {
		return nil, r.fail(opFindByUser, "user_id="+userID, err)
	}
	return ratings, nil
}

// ComputeRatingStats scans every rating of movieID, with no early stop, and
// reduces them to average, count and distribution.
func (r *RatingsRepository) ComputeRatingStats(ctx context.Context, movieID string) (domain.RatingStats, error) {
	if !validKeyComponent(movieID) {
		return Summarize(nil), nil
	}
	ratings, err := retry.Do(ctx, r.policy(opStats), func(ctx context.Context) ([]domain.Rating, error) {
		return r.scanByMovie(ctx, opStats, movieID, 0)
	})
	if err != nil {
		return domain.RatingStats{}, r.fail(opStats, "movie_id="+movieID, err)
	}
	return Summarize(ratings), nil
}

// Summarize computes the statistics of ratings. Values below 1.0 share the
// "0.5" bucket; every other value is bucketed by its integer floor.
func Summarize(ratings []domain.Rating) domain.RatingStats {
	stats := domain.RatingStats{Distribution: map[string]int{}}
	if len(ratings) == 0 {
		return stats
	}

	var total float64
	for _, rating := range ratings {
		total += rating.Value
		stats.Distribution[bucketLabel(rating.Value)]++
	}
	stats.TotalCount = len(ratings)
	stats.AvgRating = total / float64(len(ratings))
	return stats
}

func bucketLabel(value float64) string {
	if value < 1 {
		return "0.5"
	}
	return strconv.Itoa(int(math.Floor(value)))
}

func (r *RatingsRepository) scanByMovie(ctx context.Context, op, movieID string, limit int) ([]domain.Rating, error) {
	return r.scan(ctx, op, nil, nil, limit, func(_, mid string) bool {
		return mid == movieID
	})
}

// scan runs one attempt. Errors are returned raw so the retry policy can
// classify them.
func (r *RatingsRepository) scan(ctx context.Context, op string, start, stop []byte, limit int, keep func(userID, movieID string) bool) ([]domain.Rating, error) {
	table, release, err := r.handle.Lease()
	if err != nil {
		return nil, err
	}
	defer release()

	began := time.Now()
	scanner, err := table.Scan(ctx, start, stop)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	ratings := make([]domain.Rating, 0)
	visited := 0
	for scanner.Next(ctx) {
		visited++
		row := scanner.Row()
		userID, movieID, ok := DecodeRowKey(row.Key)
		if !ok || !keep(userID, movieID) {
			continue
		}
		rating, err := decodeRating(row, userID, movieID)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
		if limit > 0 && len(ratings) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	r.metrics.ObserveScan(op, visited, len(ratings), time.Since(began))
	return ratings, nil
}

// decodeRating reads the rating columns. A missing rating decodes as 0 and a
// missing timestamp as "".
func decodeRating(row wide.Row, userID, movieID string) (domain.Rating, error) {
	rating := domain.Rating{UserID: userID, MovieID: movieID}
	if raw, ok := row.Column(ColumnRating); ok {
		text := strings.TrimSpace(string(raw))
		if text != "" {
			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return domain.Rating{}, fmt.Errorf("decode %s of row %s: %w", ColumnRating, row.Key, err)
			}
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return domain.Rating{}, fmt.Errorf("decode %s of row %s: non-finite value %q", ColumnRating, row.Key, text)
			}
			rating.Value = value
		}
	}
	if raw, ok := row.Column(ColumnTimestamp); ok {
		rating.Timestamp = string(raw)
	}
	return rating, nil
}

func (r *RatingsRepository) policy(op string) retry.Policy {
	return retry.Policy{
		Op:         op,
		MaxRetries: r.maxRetries,
		Refresh: func(ctx context.Context) error {
			_, err := r.handle.Acquire(ctx)
			return err
		},
		Logger:   r.logger,
		Recorder: r.metrics,
	}
}

// fail logs err with the query key and converts non-connection failures to
// *QueryError.
func (r *RatingsRepository) fail(op, key string, err error) error {
	r.logger.Error("ratings query failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
	if errors.Is(err, retry.ErrConnectionExhausted) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &QueryError{Op: op, Key: key, Err: err}
}
