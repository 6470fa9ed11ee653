package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// noGenres is the MovieLens placeholder for an empty genre list.
const noGenres = "(no genres listed)"

// ReadMoviesCSV parses "movieId,title,genres" records, with genres separated
// by "|". A header line is skipped.
func ReadMoviesCSV(r io.Reader) ([]domain.Movie, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var movies []domain.Movie
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return movies, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read movies csv line %d: %w", line, err)
		}
		if line == 1 && len(record) > 0 && strings.EqualFold(record[0], "movieId") {
			continue
		}
		if len(record) < 2 || strings.TrimSpace(record[0]) == "" {
			return nil, fmt.Errorf("movies csv line %d: want id and title", line)
		}

		movie := domain.Movie{
			ID:     strings.TrimSpace(record[0]),
			Title:  strings.TrimSpace(record[1]),
			Genres: []string{},
		}
		if len(record) > 2 && record[2] != "" && record[2] != noGenres {
			movie.Genres = strings.Split(record[2], "|")
		}
		movies = append(movies, movie)
	}
}
