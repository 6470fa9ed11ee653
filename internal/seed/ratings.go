// Package seed loads MovieLens-style CSV exports into the stores for local
// runs: ratings into a column-family table, movies into Postgres.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

// Summary reports what LoadRatingsCSV wrote.
type Summary struct {
	Rows    int
	byMovie map[string]*movieTotal
}

type movieTotal struct {
	sum   float64
	count int
}

// Apply copies the loaded average and count of m's ratings onto m.
func (s Summary) Apply(m *domain.Movie) {
	total, ok := s.byMovie[m.ID]
	if !ok || total.count == 0 {
		m.AvgRating, m.RatingCount = 0, 0
		return
	}
	m.AvgRating = total.sum / float64(total.count)
	m.RatingCount = total.count
}

// LoadRatingsCSV reads "userId,movieId,rating,timestamp" records and writes
// one row per record keyed "userId_movieId". A header line is skipped.
func LoadRatingsCSV(ctx context.Context, r io.Reader, w wide.Writer) (Summary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	summary := Summary{byMovie: map[string]*movieTotal{}}
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		if err != nil {
			return summary, fmt.Errorf("read ratings csv line %d: %w", line, err)
		}
		if line == 1 && len(record) > 0 && strings.EqualFold(record[0], "userId") {
			continue
		}
		if len(record) < 3 {
			return summary, fmt.Errorf("ratings csv line %d: want at least 3 fields, got %d", line, len(record))
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return summary, fmt.Errorf("ratings csv line %d: bad rating %q: %w", line, record[2], err)
		}

		row := wide.Row{
			Key: repository.EncodeRowKey(record[0], record[1]),
			Columns: map[string][]byte{
				repository.ColumnRating: []byte(record[2]),
			},
		}
		if len(record) > 3 {
			row.Columns[repository.ColumnTimestamp] = []byte(record[3])
		}
		if err := w.Put(ctx, row); err != nil {
			return summary, fmt.Errorf("put row %s: %w", row.Key, err)
		}

		total, ok := summary.byMovie[record[1]]
		if !ok {
			total = &movieTotal{}
			summary.byMovie[record[1]] = total
		}
		total.sum += value
		total.count++
		summary.Rows++
	}
}
