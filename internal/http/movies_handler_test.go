package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/metrics"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/retry"
	"github.com/Clark-Hu/movie-ratings/internal/service"
)

// fakeQueries records the arguments it receives and returns canned results.
type fakeQueries struct {
	err error

	movies  domain.Page[domain.Movie]
	detail  domain.MovieDetail
	found   bool
	ratings domain.Page[domain.Rating]
	stats   domain.RatingStats
	user    []domain.Rating
	search  []domain.Movie

	lastPage, lastPageSize, lastLimit int
	lastID, lastQuery                 string
}

func (f *fakeQueries) ListMovies(_ context.Context, page, pageSize int) (domain.Page[domain.Movie], error) {
	f.lastPage, f.lastPageSize = page, pageSize
	return f.movies, f.err
}

func (f *fakeQueries) GetMovieDetail(_ context.Context, movieID string) (domain.MovieDetail, bool, error) {
	f.lastID = movieID
	return f.detail, f.found, f.err
}

func (f *fakeQueries) ListMovieRatings(_ context.Context, movieID string, page, pageSize int) (domain.Page[domain.Rating], error) {
	f.lastID, f.lastPage, f.lastPageSize = movieID, page, pageSize
	return f.ratings, f.err
}

func (f *fakeQueries) RatingStats(_ context.Context, movieID string) (domain.RatingStats, error) {
	f.lastID = movieID
	return f.stats, f.err
}

func (f *fakeQueries) ListUserRatings(_ context.Context, userID string, limit int) ([]domain.Rating, error) {
	f.lastID, f.lastLimit = userID, limit
	return f.user, f.err
}

func (f *fakeQueries) Search(_ context.Context, query string, limit int) ([]domain.Movie, error) {
	f.lastQuery, f.lastLimit = query, limit
	return f.search, f.err
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func buildTestServer(tb testing.TB, q Queries) *Server {
	tb.Helper()
	cfg := config.Defaults()
	cfg.Port = "0"
	return New(cfg, fakeHealth{}, q, prometheus.NewRegistry(), nil)
}

func serve(tb testing.TB, srv *Server, target string) *httptest.ResponseRecorder {
	tb.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestHandleListMovies_Defaults(t *testing.T) {
	q := &fakeQueries{movies: domain.Page[domain.Movie]{
		Items:      []domain.Movie{{ID: "1", Title: "Toy Story (1995)", AvgRating: 3.9, RatingCount: 215}},
		Total:      1,
		Page:       1,
		PageSize:   20,
		TotalPages: 1,
	}}
	srv := buildTestServer(t, q)

	rec := serve(t, srv, "/movies")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if q.lastPage != 1 || q.lastPageSize != 20 {
		t.Fatalf("defaults = %d/%d, want 1/20", q.lastPage, q.lastPageSize)
	}

	var body movieListResponse
	decode(t, rec, &body)
	if len(body.Movies) != 1 || body.Movies[0].ID != "1" || body.TotalPages != 1 {
		t.Fatalf("body = %+v", body)
	}
	if body.Movies[0].Genres == nil {
		t.Fatalf("genres must encode as an empty array")
	}
}

func TestHandleListMovies_InvalidPage(t *testing.T) {
	srv := buildTestServer(t, &fakeQueries{})

	rec := serve(t, srv, "/movies?page=abc")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHandleListMovies_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &service.ValidationError{Field: "page_size", Reason: "must be at most 100"}, http.StatusUnprocessableEntity},
		{"exhausted", &retry.ExhaustedError{Op: "list", Attempts: 2, Err: errors.New("connection reset")}, http.StatusServiceUnavailable},
		{"not found", repository.ErrNotFound, http.StatusNotFound},
		{"repository", &repository.QueryError{Op: "scan", Key: "k", Err: errors.New("bad row")}, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := buildTestServer(t, &fakeQueries{err: tc.err})
			rec := serve(t, srv, "/movies?page_size=500")
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			var body errorResponse
			decode(t, rec, &body)
			if body.Code == "" || body.Message == "" {
				t.Fatalf("error body incomplete: %+v", body)
			}
			if tc.want == http.StatusInternalServerError && strings.Contains(body.Message, "bad row") {
				t.Fatalf("internal cause leaked: %q", body.Message)
			}
		})
	}
}

func TestHandleGetMovie(t *testing.T) {
	q := &fakeQueries{
		found: true,
		detail: domain.MovieDetail{
			Movie:         domain.Movie{ID: "2571", Title: "Matrix, The (1999)", Genres: []string{"Action"}},
			RecentRatings: []domain.Rating{{UserID: "1", MovieID: "2571", Value: 5, Timestamp: "964982703"}},
			Stats:         domain.RatingStats{AvgRating: 5, TotalCount: 1, Distribution: map[string]int{"5": 1}},
		},
	}
	srv := buildTestServer(t, q)

	rec := serve(t, srv, "/movies/2571")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if q.lastID != "2571" {
		t.Fatalf("movie id = %q", q.lastID)
	}

	var body map[string]json.RawMessage
	decode(t, rec, &body)
	for _, key := range []string{"id", "title", "genres", "avg_rating", "rating_count", "recent_ratings", "rating_stats"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("detail response missing %q: %v", key, body)
		}
	}
	var stats ratingStatsResponse
	if err := json.Unmarshal(body["rating_stats"], &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.RatingDistribution["5"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHandleGetMovie_NotFound(t *testing.T) {
	srv := buildTestServer(t, &fakeQueries{found: false})

	rec := serve(t, srv, "/movies/404")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleListMovieRatings(t *testing.T) {
	q := &fakeQueries{ratings: domain.Page[domain.Rating]{Items: []domain.Rating{}, Page: 2, PageSize: 5}}
	srv := buildTestServer(t, q)

	rec := serve(t, srv, "/movies/7/ratings?page=2&page_size=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if q.lastID != "7" || q.lastPage != 2 || q.lastPageSize != 5 {
		t.Fatalf("args = %s %d %d", q.lastID, q.lastPage, q.lastPageSize)
	}
	var body ratingListResponse
	decode(t, rec, &body)
	if body.Ratings == nil || body.TotalPages != 0 {
		t.Fatalf("body = %+v", body)
	}
}

func TestHandleRatingStats(t *testing.T) {
	q := &fakeQueries{stats: domain.RatingStats{AvgRating: 4, TotalCount: 2, Distribution: map[string]int{"5": 1, "3": 1}}}
	srv := buildTestServer(t, q)

	rec := serve(t, srv, "/movies/m1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body ratingStatsResponse
	decode(t, rec, &body)
	if body.AvgRating != 4 || body.TotalCount != 2 || body.RatingDistribution["3"] != 1 {
		t.Fatalf("body = %+v", body)
	}
}

func TestHandleListUserRatings(t *testing.T) {
	q := &fakeQueries{user: []domain.Rating{{UserID: "u1", MovieID: "m1", Value: 4}}}
	srv := buildTestServer(t, q)

	rec := serve(t, srv, "/users/u1/ratings")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if q.lastLimit != 10 {
		t.Fatalf("default limit = %d, want 10", q.lastLimit)
	}
	var body userRatingsResponse
	decode(t, rec, &body)
	if body.UserID != "u1" || body.Total != 1 {
		t.Fatalf("body = %+v", body)
	}
}

func TestHandleSearchMovies(t *testing.T) {
	q := &fakeQueries{search: []domain.Movie{{ID: "2571", Title: "Matrix, The (1999)"}}}
	srv := buildTestServer(t, q)

	rec := serve(t, srv, "/movies/search?q=matrix")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if q.lastQuery != "matrix" || q.lastLimit != 50 {
		t.Fatalf("args = %q %d", q.lastQuery, q.lastLimit)
	}
	var body searchResponse
	decode(t, rec, &body)
	if body.Query != "matrix" || body.Total != 1 {
		t.Fatalf("body = %+v", body)
	}

	if rec := serve(t, srv, "/movies/search"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing q status = %d, want 422", rec.Code)
	}
	if rec := serve(t, srv, "/movies/search?q=x&limit=ten"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad limit status = %d, want 422", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	cfg := config.Defaults()
	ok := New(cfg, fakeHealth{}, &fakeQueries{}, prometheus.NewRegistry(), nil)
	if rec := serve(t, ok, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	down := New(cfg, fakeHealth{err: errors.New("dial tcp: connection refused")}, &fakeQueries{}, prometheus.NewRegistry(), nil)
	if rec := serve(t, down, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	collector.Retry("find_ratings_by_movie")

	srv := New(config.Defaults(), fakeHealth{}, &fakeQueries{}, reg, nil)
	rec := serve(t, srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "movies_ratings_retries_total") {
		t.Fatalf("metrics body missing retries counter:\n%s", rec.Body.String())
	}
}
