// Package service implements the read-only movie queries on top of the movie
// and rating repositories: pagination, sorting, ranking and validation.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// RecentRatingsLimit bounds the ratings embedded in a movie detail.
const RecentRatingsLimit = 10

// MovieStore reads movies.
type MovieStore interface {
	FindAll(ctx context.Context) ([]domain.Movie, error)
	FindByID(ctx context.Context, id string) (domain.Movie, error)
	SearchByText(ctx context.Context, query string, limit int) ([]domain.Movie, error)
}

// RatingStore reads ratings.
type RatingStore interface {
	FindRatingsByMovieFullScan(ctx context.Context, movieID string, limit int) ([]domain.Rating, error)
	FindRatingsByUser(ctx context.Context, userID string, limit int) ([]domain.Rating, error)
	ComputeRatingStats(ctx context.Context, movieID string) (domain.RatingStats, error)
}

// QueryService answers the movie and rating queries exposed over HTTP.
type QueryService struct {
	movies  MovieStore
	ratings RatingStore
	logger  *zap.Logger
}

// New builds a QueryService. A nil logger discards output.
func New(movies MovieStore, ratings RatingStore, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{movies: movies, ratings: ratings, logger: logger.Named("service")}
}

// ListMovies returns one page of all movies ordered by average rating then
// rating count, both descending.
func (s *QueryService) ListMovies(ctx context.Context, page, pageSize int) (domain.Page[domain.Movie], error) {
	if err := check(pageParams{Page: page, PageSize: pageSize}); err != nil {
		return domain.Page[domain.Movie]{}, err
	}

	movies, err := s.movies.FindAll(ctx)
	if err != nil {
		s.logger.Error("list movies failed", zap.Int("page", page), zap.Int("page_size", pageSize), zap.Error(err))
		return domain.Page[domain.Movie]{}, fmt.Errorf("list movies: %w", err)
	}
	sort.SliceStable(movies, func(i, j int) bool {
		return byRating(movies[i], movies[j])
	})

	result := paginate(movies, page, pageSize)
	result.TotalPages = ceilDiv(result.Total, pageSize)
	return result, nil
}

// GetMovieDetail returns the movie with up to RecentRatingsLimit of its
// ratings and statistics over all of them. found is false when the movie
// does not exist.
func (s *QueryService) GetMovieDetail(ctx context.Context, movieID string) (domain.MovieDetail, bool, error) {
	if err := check(idParams{ID: movieID}); err != nil {
		return domain.MovieDetail{}, false, err
	}

	movie, err := s.movies.FindByID(ctx, movieID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.MovieDetail{}, false, nil
	}
	if err != nil {
		s.logger.Error("get movie failed", zap.String("movie_id", movieID), zap.Error(err))
		return domain.MovieDetail{}, false, fmt.Errorf("get movie %s: %w", movieID, err)
	}

	recent, err := s.ratings.FindRatingsByMovieFullScan(ctx, movieID, RecentRatingsLimit)
	if err != nil {
		s.logger.Error("recent ratings failed", zap.String("movie_id", movieID), zap.Error(err))
		return domain.MovieDetail{}, false, fmt.Errorf("recent ratings of %s: %w", movieID, err)
	}
	stats, err := s.ratings.ComputeRatingStats(ctx, movieID)
	if err != nil {
		s.logger.Error("rating stats failed", zap.String("movie_id", movieID), zap.Error(err))
		return domain.MovieDetail{}, false, fmt.Errorf("rating stats of %s: %w", movieID, err)
	}

	return domain.MovieDetail{Movie: movie, RecentRatings: recent, Stats: stats}, true, nil
}

// ListMovieRatings returns one page of every rating of movieID, newest
// timestamp first. TotalPages is 0 when there are no ratings.
func (s *QueryService) ListMovieRatings(ctx context.Context, movieID string, page, pageSize int) (domain.Page[domain.Rating], error) {
	if err := check(movieRatingsParams{MovieID: movieID, Page: page, PageSize: pageSize}); err != nil {
		return domain.Page[domain.Rating]{}, err
	}

	ratings, err := s.ratings.FindRatingsByMovieFullScan(ctx, movieID, 0)
	if err != nil {
		s.logger.Error("list movie ratings failed",
			zap.String("movie_id", movieID), zap.Int("page", page), zap.Int("page_size", pageSize), zap.Error(err))
		return domain.Page[domain.Rating]{}, fmt.Errorf("list ratings of %s: %w", movieID, err)
	}
	sort.SliceStable(ratings, func(i, j int) bool {
		return ratings[i].Timestamp > ratings[j].Timestamp
	})

	result := paginate(ratings, page, pageSize)
	if result.Total > 0 {
		result.TotalPages = ceilDiv(result.Total, pageSize)
	}
	return result, nil
}

// RatingStats returns the statistics of every rating of movieID.
func (s *QueryService) RatingStats(ctx context.Context, movieID string) (domain.RatingStats, error) {
	if err := check(idParams{ID: movieID}); err != nil {
		return domain.RatingStats{}, err
	}
	stats, err := s.ratings.ComputeRatingStats(ctx, movieID)
	if err != nil {
		s.logger.Error("rating stats failed", zap.String("movie_id", movieID), zap.Error(err))
		return domain.RatingStats{}, fmt.Errorf("rating stats of %s: %w", movieID, err)
	}
	return stats, nil
}

// ListUserRatings returns up to limit ratings by userID in key order.
func (s *QueryService) ListUserRatings(ctx context.Context, userID string, limit int) ([]domain.Rating, error) {
	if err := check(limitParams{ID: userID, Limit: limit}); err != nil {
		return nil, err
	}
	ratings, err := s.ratings.FindRatingsByUser(ctx, userID, limit)
	if err != nil {
		s.logger.Error("list user ratings failed", zap.String("user_id", userID), zap.Int("limit", limit), zap.Error(err))
		return nil, fmt.Errorf("list ratings by %s: %w", userID, err)
	}
	return ratings, nil
}

// Search finds movies for query. An all-digit query is an exact id lookup
// returning zero or one movie. Any other query is a text match of at most
// limit movies, with title matches ranked ahead of genre-only matches and
// ties broken by average rating then rating count.
func (s *QueryService) Search(ctx context.Context, query string, limit int) ([]domain.Movie, error) {
	if err := check(searchParams{Limit: limit}); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Movie{}, nil
	}

	if isDigits(query) {
		movie, err := s.movies.FindByID(ctx, query)
		if errors.Is(err, repository.ErrNotFound) {
			return []domain.Movie{}, nil
		}
		if err != nil {
			s.logger.Error("search by id failed", zap.String("query", query), zap.Error(err))
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		return []domain.Movie{movie}, nil
	}

	movies, err := s.movies.SearchByText(ctx, query, limit)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", query), zap.Int("limit", limit), zap.Error(err))
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	needle := strings.ToLower(query)
	sort.SliceStable(movies, func(i, j int) bool {
		ti := strings.Contains(strings.ToLower(movies[i].Title), needle)
		tj := strings.Contains(strings.ToLower(movies[j].Title), needle)
		if ti != tj {
			return ti
		}
		return byRating(movies[i], movies[j])
	})
	return movies, nil
}

func byRating(a, b domain.Movie) bool {
	if a.AvgRating != b.AvgRating {
		return a.AvgRating > b.AvgRating
	}
	return a.RatingCount > b.RatingCount
}

// paginate slices items for a 1-based page. Pages past the end are empty.
func paginate[T any](items []T, page, pageSize int) domain.Page[T] {
	result := domain.Page[T]{Total: len(items), Page: page, PageSize: pageSize, Items: []T{}}
	// Compare page numbers first so (page-1)*pageSize cannot overflow.
	if page < 1 || pageSize < 1 || page-1 >= ceilDiv(len(items), pageSize) {
		return result
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	result.Items = items[start:end]
	return result
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

// isDigits accepts any Unicode decimal digit, so "４２" is treated as an id.
func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
