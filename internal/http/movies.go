package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/retry"
	"github.com/Clark-Hu/movie-ratings/internal/service"
)

const (
	defaultPage             = 1
	defaultPageSize         = 20
	defaultSearchLimit      = 50
	defaultUserRatingsLimit = 10
)

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type movieResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Genres      []string `json:"genres"`
	AvgRating   float64  `json:"avg_rating"`
	RatingCount int      `json:"rating_count"`
}

type movieListResponse struct {
	Movies     []movieResponse `json:"movies"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

type searchResponse struct {
	Movies []movieResponse `json:"movies"`
	Query  string          `json:"query"`
	Total  int             `json:"total"`
}

type ratingResponse struct {
	UserID    string  `json:"user_id"`
	MovieID   string  `json:"movie_id"`
	Rating    float64 `json:"rating"`
	Timestamp string  `json:"timestamp"`
}

type ratingListResponse struct {
	Ratings    []ratingResponse `json:"ratings"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

type userRatingsResponse struct {
	UserID  string           `json:"user_id"`
	Ratings []ratingResponse `json:"ratings"`
	Total   int              `json:"total"`
}

type ratingStatsResponse struct {
	AvgRating          float64        `json:"avg_rating"`
	TotalCount         int            `json:"total_count"`
	RatingDistribution map[string]int `json:"rating_distribution"`
}

type movieDetailResponse struct {
	movieResponse
	RecentRatings []ratingResponse    `json:"recent_ratings"`
	RatingStats   ratingStatsResponse `json:"rating_stats"`
}

type pageQuery struct {
	Page     int
	PageSize int
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	pq, err := parsePageQuery(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	result, err := s.queries.ListMovies(r.Context(), pq.Page, pq.PageSize)
	if err != nil {
		s.respondQueryError(w, err, "Failed to list movies")
		return
	}

	s.respondJSON(w, http.StatusOK, movieListResponse{
		Movies:     toMovieResponses(result.Items),
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

func (s *Server) handleSearchMovies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := query.Get("q")
	if q == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required")
		return
	}
	limit, err := intParam(query, "limit", defaultSearchLimit)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	movies, err := s.queries.Search(r.Context(), q, limit)
	if err != nil {
		s.respondQueryError(w, err, "Search failed")
		return
	}
	s.respondJSON(w, http.StatusOK, searchResponse{
		Movies: toMovieResponses(movies),
		Query:  q,
		Total:  len(movies),
	})
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	movieID := chi.URLParam(r, "movieID")

	detail, found, err := s.queries.GetMovieDetail(r.Context(), movieID)
	if err != nil {
		s.respondQueryError(w, err, "Failed to fetch movie")
		return
	}
	if !found {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Movie not found")
		return
	}

	s.respondJSON(w, http.StatusOK, movieDetailResponse{
		movieResponse: toMovieResponse(detail.Movie),
		RecentRatings: toRatingResponses(detail.RecentRatings),
		RatingStats:   toRatingStatsResponse(detail.Stats),
	})
}

func (s *Server) handleListMovieRatings(w http.ResponseWriter, r *http.Request) {
	movieID := chi.URLParam(r, "movieID")
	pq, err := parsePageQuery(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	result, err := s.queries.ListMovieRatings(r.Context(), movieID, pq.Page, pq.PageSize)
	if err != nil {
		s.respondQueryError(w, err, "Failed to list ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, ratingListResponse{
		Ratings:    toRatingResponses(result.Items),
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

func (s *Server) handleRatingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queries.RatingStats(r.Context(), chi.URLParam(r, "movieID"))
	if err != nil {
		s.respondQueryError(w, err, "Failed to compute rating stats")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingStatsResponse(stats))
}

func (s *Server) handleListUserRatings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, err := intParam(r.URL.Query(), "limit", defaultUserRatingsLimit)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	ratings, err := s.queries.ListUserRatings(r.Context(), userID, limit)
	if err != nil {
		s.respondQueryError(w, err, "Failed to list user ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, userRatingsResponse{
		UserID:  userID,
		Ratings: toRatingResponses(ratings),
		Total:   len(ratings),
	})
}

func parsePageQuery(query url.Values) (pageQuery, error) {
	page, err := intParam(query, "page", defaultPage)
	if err != nil {
		return pageQuery{}, err
	}
	size, err := intParam(query, "page_size", defaultPageSize)
	if err != nil {
		return pageQuery{}, err
	}
	return pageQuery{Page: page, PageSize: size}, nil
}

// intParam reads an optional integer query parameter. Range checks are left
// to the service.
func intParam(query url.Values, name string, fallback int) (int, error) {
	val := strings.TrimSpace(query.Get(name))
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value", name)
	}
	return n, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// respondQueryError maps a service error to its status. message is used for
// internal errors so their cause is not leaked.
func (s *Server) respondQueryError(w http.ResponseWriter, err error, message string) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Error())
	case errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, retry.ErrConnectionExhausted):
		s.logger.Warn("ratings store unavailable", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Ratings store unavailable, retry later")
	default:
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
	}
}

func toMovieResponse(movie domain.Movie) movieResponse {
	genres := movie.Genres
	if genres == nil {
		genres = []string{}
	}
	return movieResponse{
		ID:          movie.ID,
		Title:       movie.Title,
		Genres:      genres,
		AvgRating:   movie.AvgRating,
		RatingCount: movie.RatingCount,
	}
}

func toMovieResponses(movies []domain.Movie) []movieResponse {
	out := make([]movieResponse, 0, len(movies))
	for _, m := range movies {
		out = append(out, toMovieResponse(m))
	}
	return out
}

func toRatingResponses(ratings []domain.Rating) []ratingResponse {
	out := make([]ratingResponse, 0, len(ratings))
	for _, r := range ratings {
		out = append(out, ratingResponse{
			UserID:    r.UserID,
			MovieID:   r.MovieID,
			Rating:    r.Value,
			Timestamp: r.Timestamp,
		})
	}
	return out
}

func toRatingStatsResponse(stats domain.RatingStats) ratingStatsResponse {
	dist := stats.Distribution
	if dist == nil {
		dist = map[string]int{}
	}
	return ratingStatsResponse{
		AvgRating:          stats.AvgRating,
		TotalCount:         stats.TotalCount,
		RatingDistribution: dist,
	}
}
