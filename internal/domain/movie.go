package domain

// Movie represents the canonical movie entity served by the query layer.
// AvgRating and RatingCount are denormalized columns maintained outside this
// service; they are not recomputed from rating rows on read.
type Movie struct {
	ID          string
	Title       string
	Genres      []string
	AvgRating   float64
	RatingCount int
}

// MovieDetail combines a movie with a bounded sample of its ratings and the
// statistics computed from all of them.
type MovieDetail struct {
	Movie
	// RecentRatings holds at most ten ratings in scan-encounter order. The
	// store has no time index, so this is not sorted by timestamp.
	RecentRatings []Rating
	Stats         RatingStats
}

// Page is one slice of a sorted result set.
type Page[T any] struct {
	Items      []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}
