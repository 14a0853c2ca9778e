package index

import (
	"errors"
	"fmt"
)

// ErrInvalidK is returned when a search is requested with k < 1.
var ErrInvalidK = errors.New("k must be greater than zero")

// ErrEmptyVector is returned when an empty vector is inserted or searched.
var ErrEmptyVector = errors.New("vector must not be empty")

// ErrDimensionMismatch reports a vector whose length does not match the
// dimensionality the index was built with.
type ErrDimensionMismatch struct {
	Expected int // Dimensionality the index was built with
	Actual   int // Length of the supplied vector
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension reports a non-positive dimensionality at build time.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d (must be > 0)", e.Dimension)
}

// ErrInvalidParameter reports a builder parameter outside its valid range.
type ErrInvalidParameter struct {
	Name   string
	Reason string
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Name, e.Reason)
}

// ErrUnsupportedAlgorithm reports an algorithm value no builder exists for.
type ErrUnsupportedAlgorithm struct {
	Name string
}

func (e *ErrUnsupportedAlgorithm) Error() string {
	return fmt.Sprintf("unsupported index algorithm %q", e.Name)
}

// ErrUnsupportedMetric reports a metric the chosen backend cannot serve.
type ErrUnsupportedMetric struct {
	Algorithm Algorithm
	Metric    Metric
}

func (e *ErrUnsupportedMetric) Error() string {
	return fmt.Sprintf("%s index does not support metric %s", e.Algorithm, e.Metric)
}

// ErrRemoveUnsupported reports a backend without vector removal support.
type ErrRemoveUnsupported struct {
	Algorithm Algorithm
}

func (e *ErrRemoveUnsupported) Error() string {
	return fmt.Sprintf("%s index does not support remove", e.Algorithm)
}

// ErrIDNotFound reports an id absent from the index.
type ErrIDNotFound struct {
	ID uint64
}

func (e *ErrIDNotFound) Error() string {
	return fmt.Sprintf("id %d not found in index", e.ID)
}
