package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("repository: not found")

// ErrRepository matches every *QueryError.
var ErrRepository = errors.New("repository: query failed")

// QueryError reports a failed scan or decode. It is never retried.
type QueryError struct {
	Op  string
	Key string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("repository: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is reports ErrRepository as a match.
func (e *QueryError) Is(target error) bool {
	return target == ErrRepository
}
