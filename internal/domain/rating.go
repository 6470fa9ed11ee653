package domain

// Rating represents a single user's rating for a movie.
type Rating struct {
	UserID  string
	MovieID string
	Value   float64
	// Timestamp is compared as a string; it must be fixed-width for the
	// ordering to be chronological.
	Timestamp string
}

// RatingStats provides average, count and histogram for a movie's ratings.
type RatingStats struct {
	AvgRating    float64
	TotalCount   int
	Distribution map[string]int
}
