package vecd

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/metadata"
	"github.com/hupe1980/vecd/scalar"
)

var (
	// ErrNotFound is returned when a document is not found.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned for operations on a closed database.
	ErrClosed = errors.New("database closed")
)

// ErrValidation indicates input that was rejected before reaching a backend:
// malformed documents, bad dimensions, unknown algorithms or operators.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrValidation struct {
	Reason string
	cause  error
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

func (e *ErrValidation) Unwrap() error { return e.cause }

// ErrIndexNotFound indicates that no index has been initialized for the
// requested key. Initializing an index and addressing it must use the exact
// same algorithm, dimension and metric.
type ErrIndexNotFound struct {
	Key index.Key
}

func (e *ErrIndexNotFound) Error() string {
	return fmt.Sprintf("index not found: %s", e.Key)
}

// ErrInitIndex wraps a failure to construct an index backend.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrInitIndex struct {
	Key   index.Key
	cause error
}

func (e *ErrInitIndex) Error() string {
	return fmt.Sprintf("init index %s: %v", e.Key, e.cause)
}

func (e *ErrInitIndex) Unwrap() error { return e.cause }

// ErrUpsert wraps a failure while upserting one document.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrUpsert struct {
	ID    uint64
	cause error
}

func (e *ErrUpsert) Error() string {
	return fmt.Sprintf("upsert id %d: %v", e.ID, e.cause)
}

func (e *ErrUpsert) Unwrap() error { return e.cause }

// ErrQuery wraps a failure while reading one document.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrQuery struct {
	ID    uint64
	cause error
}

func (e *ErrQuery) Error() string {
	return fmt.Sprintf("query id %d: %v", e.ID, e.cause)
}

func (e *ErrQuery) Unwrap() error { return e.cause }

// ErrBackend wraps an index backend failure that is not an input problem.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrBackend struct {
	Op    string
	Key   index.Key
	cause error
}

func (e *ErrBackend) Error() string {
	return fmt.Sprintf("backend %s on %s: %v", e.Op, e.Key, e.cause)
}

func (e *ErrBackend) Unwrap() error { return e.cause }

// translateError normalizes errors from the lower layers into the public
// taxonomy so callers can branch with errors.Is and errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, scalar.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var nf *index.ErrIDNotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Input problems all land in the validation class.
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrValidation{Reason: dm.Error(), cause: err}
	}
	var vd *index.ErrInvalidDimension
	if errors.As(err, &vd) {
		return &ErrValidation{Reason: vd.Error(), cause: err}
	}
	var ua *index.ErrUnsupportedAlgorithm
	if errors.As(err, &ua) {
		return &ErrValidation{Reason: ua.Error(), cause: err}
	}
	var um *index.ErrUnsupportedMetric
	if errors.As(err, &um) {
		return &ErrValidation{Reason: um.Error(), cause: err}
	}
	var ipar *index.ErrInvalidParameter
	if errors.As(err, &ipar) {
		return &ErrValidation{Reason: ipar.Error(), cause: err}
	}
	var uop *metadata.ErrUnknownOperator
	if errors.As(err, &uop) {
		return &ErrValidation{Reason: uop.Error(), cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) ||
		errors.Is(err, index.ErrEmptyVector) ||
		errors.Is(err, metadata.ErrNoVectors) ||
		errors.Is(err, metadata.ErrMalformedVectors) {
		return &ErrValidation{Reason: err.Error(), cause: err}
	}

	return err
}
