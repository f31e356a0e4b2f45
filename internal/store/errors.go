package store

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when Build is called without vectors.
var ErrEmptyInput = errors.New("cannot build a vector store from empty input")

// CardinalityError reports documents and vectors of different lengths.
type CardinalityError struct {
	Documents int
	Vectors   int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("number of documents (%d) does not match number of vectors (%d)", e.Documents, e.Vectors)
}

// DimensionMismatchError reports a vector whose length differs from the first vector's.
// A zero-length first vector is reported with Index 0 and Expected 0.
type DimensionMismatchError struct {
	Index    int
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	if e.Expected == 0 {
		return fmt.Sprintf("vector %d has zero dimensions", e.Index)
	}
	return fmt.Sprintf("vector %d has %d dimensions, expected %d", e.Index, e.Got, e.Expected)
}

// PersistenceError reports a failure writing the store to disk.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
