package repository

import "strings"

// Rating rows are keyed "{user_id}_{movie_id}" and carry two columns in the
// "data" family.
const (
	RowKeyDelimiter = "_"
	ColumnRating    = "data:rating"
	ColumnTimestamp = "data:timestamp"

	// scanStopSentinel closes a user's key range. It sorts after every ASCII
	// digit and letter, which covers the movie ids in use.
	scanStopSentinel = "~"
)

// EncodeRowKey builds the row key of one user's rating of one movie.
func EncodeRowKey(userID, movieID string) []byte {
	return []byte(userID + RowKeyDelimiter + movieID)
}

// DecodeRowKey splits a row key into its two components. ok is false unless
// the key has exactly two non-empty parts.
func DecodeRowKey(key []byte) (userID, movieID string, ok bool) {
	parts := strings.Split(string(key), RowKeyDelimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// userKeyRange returns [user_, user_~): the rows whose key starts with the
// user's id.
func userKeyRange(userID string) (start, stop []byte) {
	prefix := userID + RowKeyDelimiter
	return []byte(prefix), []byte(prefix + scanStopSentinel)
}

// validKeyComponent reports whether s could appear as one side of a row key.
func validKeyComponent(s string) bool {
	return s != "" && !strings.Contains(s, RowKeyDelimiter)
}
