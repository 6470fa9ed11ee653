package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// MoviesRepository provides persistence helpers for movie entities.
type MoviesRepository struct {
	pool *pgxpool.Pool
}

const movieColumns = `
    id,
    title,
    genres,
    avg_rating,
    rating_count
`

// FindAll returns every movie ordered by id.
func (r *MoviesRepository) FindAll(ctx context.Context) ([]domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies ORDER BY id`, movieColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	return collectMovies(rows)
}

// FindByID fetches a movie by its identifier.
func (r *MoviesRepository) FindByID(ctx context.Context, id string) (domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies WHERE id = $1`, movieColumns)
	movie, err := scanMovie(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Movie{}, ErrNotFound
		}
		return domain.Movie{}, fmt.Errorf("get movie %s: %w", id, err)
	}
	return movie, nil
}

// SearchByText returns up to limit movies whose title or any genre contains
// query, case-insensitively.
func (r *MoviesRepository) SearchByText(ctx context.Context, query string, limit int) ([]domain.Movie, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"

	sql := fmt.Sprintf(`
        SELECT %s FROM movies
        WHERE title ILIKE $1
           OR EXISTS (SELECT 1 FROM unnest(genres) AS g WHERE g ILIKE $1)
        ORDER BY avg_rating DESC, rating_count DESC, id
        LIMIT $2
    `, movieColumns)

	rows, err := r.pool.Query(ctx, sql, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search movies: %w", err)
	}
	return collectMovies(rows)
}

// Upsert inserts or replaces a movie row. Used by the seeding tool.
func (r *MoviesRepository) Upsert(ctx context.Context, movie domain.Movie) error {
	const query = `
        INSERT INTO movies (id, title, genres, avg_rating, rating_count)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id)
        DO UPDATE SET title = EXCLUDED.title,
                      genres = EXCLUDED.genres,
                      avg_rating = EXCLUDED.avg_rating,
                      rating_count = EXCLUDED.rating_count
    `
	genres := movie.Genres
	if genres == nil {
		genres = []string{}
	}
	if _, err := r.pool.Exec(ctx, query, movie.ID, movie.Title, genres, movie.AvgRating, movie.RatingCount); err != nil {
		return fmt.Errorf("upsert movie %s: %w", movie.ID, err)
	}
	return nil
}

func collectMovies(rows pgx.Rows) ([]domain.Movie, error) {
	defer rows.Close()

	movies := make([]domain.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movies, nil
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var movie domain.Movie
	err := row.Scan(
		&movie.ID,
		&movie.Title,
		&movie.Genres,
		&movie.AvgRating,
		&movie.RatingCount,
	)
	if err != nil {
		return domain.Movie{}, err
	}
	if movie.Genres == nil {
		movie.Genres = []string{}
	}
	return movie, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
